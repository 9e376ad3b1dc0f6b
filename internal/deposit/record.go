package deposit

import (
	"context"
	"errors"
	"time"
)

// Status is the lifecycle state of a deposit record. The only valid
// transitions are created→broadcast and created→canceled; there is no
// re-entry into created.
type Status string

const (
	StatusCreated   Status = "created"
	StatusBroadcast Status = "broadcast"
	StatusCanceled  Status = "canceled"
)

var (
	ErrNotFound          = errors.New("deposit record not found")
	ErrInvalidTransition = errors.New("invalid deposit status transition")
)

// CreateFields is everything known about a deposit attempt before any wallet
// interaction begins.
type CreateFields struct {
	SourceAmountSats         uint64
	DestinationReceiver      string
	SourceSender             string
	SwapType                 string
	MinOutputAmount          string
	PoolID                   string
	DexID                    string
	SecondaryReceiverAddress string
}

// Record is the durable anchor of one deposit attempt.
type Record struct {
	ID                       string     `json:"id"`
	SourceAmountSats         uint64     `json:"sourceAmountSats"`
	DestinationReceiver      string     `json:"destinationReceiver"`
	SourceSender             string     `json:"sourceSender"`
	SwapType                 string     `json:"swapType"`
	MinOutputAmount          string     `json:"minOutputAmount"`
	PoolID                   string     `json:"poolId"`
	DexID                    string     `json:"dexId"`
	SecondaryReceiverAddress string     `json:"secondaryReceiverAddress,omitempty"`
	Status                   Status     `json:"status"`
	SourceTxID               *string    `json:"sourceTxId,omitempty"`
	CreatedAt                time.Time  `json:"createdAt"`
	UpdatedAt                time.Time  `json:"updatedAt"`
}

// Store persists deposit records.
type Store interface {
	Create(ctx context.Context, fields CreateFields) (string, error)
	UpdateStatus(ctx context.Context, id string, status Status, txID *string) error
	Get(ctx context.Context, id string) (Record, error)
}
