package code128

import (
	"fmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"strings"
	"testing"
)

func patternString(widths []int) string {
	var b strings.Builder
	for _, w := range widths {
		fmt.Fprint(&b, w)
	}
	return b.String()
}

// decodeModules splits widths back into symbol codes, checking the stop
// pattern on the way
func decodeModules(t testing.TB, widths []int) []int {
	t.Helper()
	byPattern := make(map[string]int, len(patterns))
	for code, pattern := range patterns {
		byPattern[patternString(pattern)] = code
	}

	require.GreaterOrEqual(t, len(widths), 7)
	stop := widths[len(widths)-7:]
	require.Equal(t, "2331112", patternString(stop))

	body := widths[:len(widths)-7]
	require.Zero(t, len(body)%6, "widths don't split into whole symbols")
	codes := make([]int, 0, len(body)/6+1)
	for i := 0; i < len(body); i += 6 {
		code, ok := byPattern[patternString(body[i:i+6])]
		require.Truef(t, ok, "unknown pattern at symbol %d", i/6)
		codes = append(codes, code)
	}
	return append(codes, CodeStop)
}

// decodeText returns the text carried by codes, after checking the checksum
func decodeText(t testing.TB, codes []int) string {
	t.Helper()
	require.GreaterOrEqual(t, len(codes), 3)
	payload := codes[:len(codes)-2]
	require.Equal(t, Checksum(payload), codes[len(codes)-2])

	var b strings.Builder
	tableB := payload[0] == CodeStartB
	for _, code := range payload[1:] {
		switch {
		case !tableB && code == CodeShiftB:
			tableB = true
		case tableB:
			b.WriteByte(byte(code + firstPrintable))
		default:
			fmt.Fprintf(&b, "%02d", code)
		}
	}
	return b.String()
}

func TestModules(t *testing.T) {
	t.Parallel()

	for code, pattern := range patterns {
		total := 0
		for _, w := range pattern {
			total += w
		}
		if code == CodeStop {
			assert.Len(t, pattern, 7)
			assert.Equal(t, 13, total)
			continue
		}
		assert.Lenf(t, pattern, 6, "code %d", code)
		assert.Equalf(t, 11, total, "code %d", code)
	}

	codes, err := Codes("ASSET-42")
	require.NoError(t, err)
	widths, err := Modules(codes)
	require.NoError(t, err)
	assert.Len(t, widths, (len(codes)-1)*6+7)
	assert.Equal(t, (len(codes)-1)*11+13, Width(widths))
	assert.Equal(t, []int{2, 1, 1, 2, 1, 4}, widths[:6])
}

func TestModulesKnownPatterns(t *testing.T) {
	t.Parallel()
	known := map[int]string{
		0:          "212222",
		1:          "222122",
		2:          "222221",
		3:          "121223",
		12:         "112232",
		17:         "123221",
		33:         "111323",
		34:         "131123",
		35:         "131321",
		99:         "113141",
		CodeShiftB: "114131",
		101:        "311141",
		102:        "411131",
		103:        "211412",
		CodeStartB: "211214",
		CodeStartC: "211232",
		CodeStop:   "2331112",
	}
	for code, expected := range known {
		widths, err := Modules([]int{code})
		require.NoError(t, err)
		assert.Equalf(t, expected, patternString(widths), "code %d", code)
	}
}

func TestModulesPatternsAreDistinct(t *testing.T) {
	t.Parallel()
	seen := map[string]int{}
	for code, pattern := range patterns {
		s := patternString(pattern)
		if other, ok := seen[s]; ok {
			t.Errorf("codes %d and %d share pattern %s", other, code, s)
		}
		seen[s] = code

		// each symbol has an even number of bar modules
		bars := 0
		for i := 0; i < len(pattern); i += 2 {
			bars += pattern[i]
		}
		assert.Zerof(t, bars%2, "code %d has %d bar modules", code, bars)
	}
}

func TestModulesDecode(t *testing.T) {
	t.Parallel()
	for _, input := range []string{
		"A", "AB12", "1234", "12345", "00998877", "ASSET-42", "HS-0001", "~ {}|",
	} {
		t.Run(
			input, func(t *testing.T) {
				codes, err := Codes(input)
				require.NoError(t, err)
				widths, err := Modules(codes)
				require.NoError(t, err)

				decoded := decodeModules(t, widths)
				assert.Equal(t, codes, decoded)
				assert.Equal(t, input, decodeText(t, decoded))
			},
		)
	}
}

func TestModulesInvalidCode(t *testing.T) {
	t.Parallel()
	_, err := Modules([]int{104, 200})
	require.ErrorIs(t, err, ErrInvalidCode)
}
