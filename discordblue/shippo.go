package discordblue

import (
	"context"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"github.com/lmittmann/tint"
	"log/slog"
	"net/http"
	"strings"
)

const (
	shippoLabelFileType     = "PDF_4x6"
	shippoTransactionStatus = "SUCCESS"
)

var (
	ErrNoRates = errors.New("no rates returned for shipment")
)

// Address is a Shippo address
type Address struct {
	Name    string `toml:"name" json:"name" binding:"required"`
	Company string `toml:"company" json:"company,omitempty"`
	Street1 string `toml:"street1" json:"street1" binding:"required"`
	Street2 string `toml:"street2" json:"street2,omitempty"`
	City    string `toml:"city" json:"city" binding:"required"`
	State   string `toml:"state" json:"state" binding:"required"`
	Zip     string `toml:"zip" json:"zip" binding:"required"`
	Country string `toml:"country" json:"country" binding:"required"`
	Phone   string `toml:"phone" json:"phone,omitempty"`
	Email   string `toml:"email" json:"email,omitempty"`
}

// Parcel describes the package being shipped
type Parcel struct {
	Length       string `json:"length" binding:"required"`
	Width        string `json:"width" binding:"required"`
	Height       string `json:"height" binding:"required"`
	DistanceUnit string `json:"distance_unit" binding:"required,oneof=cm in ft mm m yd"`
	Weight       string `json:"weight" binding:"required"`
	MassUnit     string `json:"mass_unit" binding:"required,oneof=g oz lb kg"`
}

// DefaultParcel is a 5x5x5in, 2lb box
func DefaultParcel() Parcel {
	return Parcel{
		Length:       "5",
		Width:        "5",
		Height:       "5",
		DistanceUnit: "in",
		Weight:       "2",
		MassUnit:     "lb",
	}
}

type shippoShipmentRequest struct {
	AddressFrom  Address  `json:"address_from"`
	AddressTo    Address  `json:"address_to"`
	Parcels      []Parcel `json:"parcels"`
	Asynchronous bool     `json:"async"`
}

// Rate is a carrier rate quoted for a shipment
type Rate struct {
	ObjectID     string `json:"object_id"`
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
	Provider     string `json:"provider"`
	ServiceLevel struct {
		Name  string `json:"name"`
		Token string `json:"token"`
	} `json:"servicelevel"`
}

type shippoShipment struct {
	ObjectID string `json:"object_id"`
	Status   string `json:"status"`
	Rates    []Rate `json:"rates"`
}

type shippoTransactionRequest struct {
	Rate          string `json:"rate"`
	LabelFileType string `json:"label_file_type"`
	Asynchronous  bool   `json:"async"`
}

type shippoMessage struct {
	Source string `json:"source"`
	Code   string `json:"code"`
	Text   string `json:"text"`
}

type shippoTransaction struct {
	ObjectID       string          `json:"object_id"`
	Status         string          `json:"status"`
	TrackingNumber string          `json:"tracking_number"`
	LabelURL       string          `json:"label_url"`
	Messages       []shippoMessage `json:"messages"`
}

// Label is a purchased shipping label
type Label struct {
	ShipmentID     string
	TransactionID  string
	Rate           Rate
	TrackingNumber string
	LabelURL       string
}

// ShippoTransactionError is returned when a label purchase doesn't succeed
type ShippoTransactionError struct {
	Status   string
	Messages []string
}

func (e *ShippoTransactionError) Error() string {
	return fmt.Sprintf(
		"Failed purchasing the label due to: (%s) %s",
		e.Status,
		strings.Join(e.Messages, "; "),
	)
}

// Shippo is a client for the Shippo shipping API
type Shippo struct {
	rest   *restClient
	config *ShippoConfig
	logger *slog.Logger
}

func newShippo(config *ShippoConfig, httpClient *http.Client) *Shippo {
	logger := newComponentLogger(config.LogLevel, "shippo")
	return &Shippo{
		config: config,
		logger: logger,
		rest: newRESTClient(
			config.URL,
			httpClient,
			nil,
			logger,
			func(r *http.Request) {
				r.Header.Set("Authorization", "ShippoToken "+config.APIKey)
			},
		),
	}
}

// BuyLabel creates a shipment from `from` to `to`, and buys a PDF_4x6
// label for its first rate
func (s *Shippo) BuyLabel(ctx context.Context, from Address, to Address, parcel Parcel) (*Label, error) {
	if s.config.APIKey == "" {
		return nil, fmt.Errorf("shippo: %w", ErrNotConfigured)
	}
	for _, v := range []any{from, to, parcel} {
		if err := structValidator.Struct(v); err != nil {
			return nil, err
		}
	}

	var shipment shippoShipment
	err := s.rest.do(
		ctx,
		http.MethodPost,
		"/shipments/",
		shippoShipmentRequest{
			AddressFrom:  from,
			AddressTo:    to,
			Parcels:      []Parcel{parcel},
			Asynchronous: false,
		},
		&shipment,
	)
	if err != nil {
		metricShipments.WithLabelValues(resultError).Inc()
		return nil, fmt.Errorf("error creating shipment: %w", err)
	}
	if len(shipment.Rates) == 0 {
		metricShipments.WithLabelValues(resultError).Inc()
		return nil, ErrNoRates
	}
	rate := shipment.Rates[0]
	s.logger.InfoContext(
		ctx,
		"created shipment",
		"shipment_id", shipment.ObjectID,
		"rate_id", rate.ObjectID,
		"provider", rate.Provider,
		"amount", rate.Amount,
	)

	var txn shippoTransaction
	err = s.rest.do(
		ctx,
		http.MethodPost,
		"/transactions/",
		shippoTransactionRequest{
			Rate:          rate.ObjectID,
			LabelFileType: shippoLabelFileType,
			Asynchronous:  false,
		},
		&txn,
	)
	if err != nil {
		metricShipments.WithLabelValues(resultError).Inc()
		return nil, fmt.Errorf("error purchasing label: %w", err)
	}

	label := &Label{
		ShipmentID:     shipment.ObjectID,
		TransactionID:  txn.ObjectID,
		Rate:           rate,
		TrackingNumber: txn.TrackingNumber,
		LabelURL:       txn.LabelURL,
	}
	if txn.Status != shippoTransactionStatus {
		metricShipments.WithLabelValues(resultError).Inc()
		txnErr := &ShippoTransactionError{Status: txn.Status}
		for _, m := range txn.Messages {
			txnErr.Messages = append(txnErr.Messages, m.Text)
		}
		s.logger.ErrorContext(ctx, "label purchase failed", tint.Err(txnErr))
		return label, txnErr
	}

	metricShipments.WithLabelValues(resultSuccess).Inc()
	s.logger.InfoContext(
		ctx,
		fmt.Sprintf("Purchased label with tracking number %s", txn.TrackingNumber),
		"label_url", txn.LabelURL,
	)
	return label, nil
}

// DownloadLabel fetches the label PDF
func (s *Shippo) DownloadLabel(ctx context.Context, label *Label) ([]byte, error) {
	if label == nil || label.LabelURL == "" {
		return nil, errors.New("label has no URL")
	}
	return s.rest.download(ctx, label.LabelURL)
}

// newShipment returns the database record for a label purchase
func newShipment(requestID string, to Address, label *Label, err error) *Shipment {
	record := &Shipment{
		RequestID: requestID,
		ToName:    to.Name,
		ToZip:     to.Zip,
		Status:    shippoTransactionStatus,
	}
	if label != nil {
		record.ShipmentID = label.ShipmentID
		record.TransactionID = label.TransactionID
		record.RateID = label.Rate.ObjectID
		record.Provider = label.Rate.Provider
		record.ServiceLevel = label.Rate.ServiceLevel.Name
		record.Amount = label.Rate.Amount
		record.Currency = label.Rate.Currency
		record.TrackingNumber = label.TrackingNumber
		record.LabelURL = label.LabelURL
	}
	if err != nil {
		record.Status = resultError
		record.Error = err.Error()
	}
	return record
}

// Ship buys a label from the saved return address to `to`, logs the
// shipment, and prints the label when printerID is set
func (b *Bot) Ship(ctx context.Context, to Address, parcel Parcel, printerID int) (*Label, error) {
	if err := b.initDB(ctx); err != nil {
		return nil, err
	}
	requestID := uuid.NewString()
	from := b.store.State().Shipping.From

	label, err := b.shippo.BuyLabel(ctx, from, to, parcel)
	if _, dbErr := b.db.Create(ctx, newShipment(requestID, to, label, err)); dbErr != nil {
		b.logger.ErrorContext(ctx, "error logging shipment", tint.Err(dbErr))
	}
	if err != nil {
		return label, err
	}
	if printerID == 0 {
		return label, nil
	}

	pdf, err := b.shippo.DownloadLabel(ctx, label)
	if err != nil {
		return label, fmt.Errorf("error downloading label: %w", err)
	}
	_, err = b.printer.Print(
		ctx, PrintRequest{
			PrinterID: printerID,
			Title:     "Shipping Label " + label.TrackingNumber,
			PDF:       pdf,
			Copies:    1,
		},
	)
	return label, err
}
