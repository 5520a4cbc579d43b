package main

import (
	"context"
	"errors"
	"os"
	"strconv"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	log "github.com/sirupsen/logrus"

	"prism-todo/storage"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	log.Info("storage init starting")

	ctx := context.Background()

	switch driver := envOr("STORAGE_DRIVER", "azure"); driver {
	case "sqlite":
		path := envOr("SQLITE_PATH", "todos.db")
		db, err := storage.OpenSQLite(path)
		if err != nil {
			log.Fatalf("sqlite schema: %v", err)
		}
		if err := db.Close(); err != nil {
			log.Fatalf("sqlite close: %v", err)
		}
		log.Infof("sqlite schema ready at %s", path)
	case "azure":
		connStr := os.Getenv("STORAGE_CONNECTION_STRING")
		if connStr == "" {
			log.Fatal("missing STORAGE_CONNECTION_STRING")
		}
		if err := createTables(ctx, connStr, []string{envOr("TODOS_TABLE", "todos")}); err != nil {
			log.Fatalf("create tables: %v", err)
		}
		if err := createQueues(ctx, connStr, []string{os.Getenv("EVENTS_QUEUE")}); err != nil {
			log.Fatalf("create queues: %v", err)
		}
	default:
		log.Fatalf("invalid STORAGE_DRIVER: %q", driver)
	}

	log.Info("storage init complete")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

type tableCreator interface {
	CreateTable(ctx context.Context, options *aztables.CreateTableOptions) (aztables.CreateTableResponse, error)
}

type queueCreator interface {
	Create(ctx context.Context, options *azqueue.CreateOptions) (azqueue.CreateResponse, error)
}

func createTables(ctx context.Context, connStr string, names []string) error {
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, nil)
	if err != nil {
		return err
	}
	for _, name := range names {
		if name == "" {
			continue
		}
		if err := ensureTable(ctx, svc.NewClient(name)); err != nil {
			return err
		}
		log.Infof("table %s ready", name)
	}
	return nil
}

func ensureTable(ctx context.Context, c tableCreator) error {
	_, err := c.CreateTable(ctx, nil)
	if err != nil && !hasErrorCode(err, string(aztables.TableAlreadyExists)) {
		return err
	}
	return nil
}

func createQueues(ctx context.Context, connStr string, names []string) error {
	for _, name := range names {
		if name == "" {
			continue
		}
		q, err := azqueue.NewQueueClientFromConnectionString(connStr, name, nil)
		if err != nil {
			return err
		}
		if err := ensureQueue(ctx, q); err != nil {
			return err
		}
		log.Infof("queue %s ready", name)
	}
	return nil
}

func ensureQueue(ctx context.Context, q queueCreator) error {
	_, err := q.Create(ctx, nil)
	if err != nil && !hasErrorCode(err, "QueueAlreadyExists") {
		return err
	}
	return nil
}

func hasErrorCode(err error, code string) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.ErrorCode == code
}
