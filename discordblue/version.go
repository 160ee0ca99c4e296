package discordblue

// Set at build time with -ldflags "-X ..."
var (
	Version   = "dev"
	CommitSHA = "unknown"
	BuildTime = "unknown"
)
