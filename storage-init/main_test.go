package main

import (
	"context"
	"errors"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
)

type fakeTable struct{ err error }

func (f fakeTable) CreateTable(ctx context.Context, options *aztables.CreateTableOptions) (aztables.CreateTableResponse, error) {
	return aztables.CreateTableResponse{}, f.err
}

type fakeQueue struct{ err error }

func (f fakeQueue) Create(ctx context.Context, options *azqueue.CreateOptions) (azqueue.CreateResponse, error) {
	return azqueue.CreateResponse{}, f.err
}

func TestEnsureTableToleratesExisting(t *testing.T) {
	if err := ensureTable(context.Background(), fakeTable{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	exists := &azcore.ResponseError{ErrorCode: string(aztables.TableAlreadyExists), StatusCode: 409}
	if err := ensureTable(context.Background(), fakeTable{err: exists}); err != nil {
		t.Fatalf("existing table should be tolerated: %v", err)
	}
	boom := errors.New("forbidden")
	if err := ensureTable(context.Background(), fakeTable{err: boom}); !errors.Is(err, boom) {
		t.Fatalf("expected error to propagate, got %v", err)
	}
}

func TestEnsureQueueToleratesExisting(t *testing.T) {
	exists := &azcore.ResponseError{ErrorCode: "QueueAlreadyExists", StatusCode: 409}
	if err := ensureQueue(context.Background(), fakeQueue{err: exists}); err != nil {
		t.Fatalf("existing queue should be tolerated: %v", err)
	}
	other := &azcore.ResponseError{ErrorCode: "AuthorizationFailure", StatusCode: 403}
	if err := ensureQueue(context.Background(), fakeQueue{err: other}); err == nil {
		t.Fatal("expected authorization failure to propagate")
	}
}
