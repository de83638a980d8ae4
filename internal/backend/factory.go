package backend

import (
	"context"
	"fmt"

	"envelopes/internal/amqp"
	"envelopes/internal/log"
	"envelopes/internal/remote/firestore"
	gsheet "envelopes/internal/sheets/google"
	"envelopes/internal/storage"
	"envelopes/internal/store/memory"
)

// DefaultFactory implements the Factory interface.
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory.
func NewFactory(logger *log.Logger) *DefaultFactory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{logger: logger.WithComponent(log.ComponentBackend)}
}

var _ Factory = (*DefaultFactory)(nil)

// CreateBackend builds the components role needs. Optional components that
// fail to initialize are logged and left nil for the server role; the
// worker role treats AMQP as required.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config, role Role) (*Result, error) {
	if err := config.Validate(role); err != nil {
		return nil, err
	}

	res := &Result{}
	fail := func(err error) (*Result, error) {
		if cerr := res.Cleanup(); cerr != nil {
			f.logger.Warn("Cleanup after failed backend init", log.FieldError, cerr)
		}
		return nil, err
	}

	if err := f.createLocal(ctx, config, res); err != nil {
		return fail(err)
	}
	if role == RoleCLI {
		return res, nil
	}

	if config.Type != FirestoreBackend && config.FirestoreProjectID != "" {
		remote, err := firestore.Open(ctx, config.FirestoreProjectID, config.FirestoreCollection)
		if err != nil {
			if role == RoleWorker {
				return fail(fmt.Errorf("failed to initialize Firestore remote: %w", err))
			}
			f.logger.Warn("Failed to initialize Firestore remote, continuing without it", log.FieldError, err)
		} else {
			res.Remote = remote
			res.addCleanup(remote.Close)
			f.logger.Info("Initialized Firestore remote",
				"project", config.FirestoreProjectID,
				"collection", config.FirestoreCollection,
				"emulator", firestore.EmulatorConfigured())
		}
	}

	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			if role == RoleWorker {
				return fail(fmt.Errorf("failed to initialize AMQP client: %w", err))
			}
			f.logger.Warn("Failed to initialize AMQP client, continuing without sync", log.FieldError, err)
		} else {
			res.AMQP = client
			res.addCleanup(client.Close)
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	if role == RoleWorker && config.GoogleSpreadsheetID != "" {
		ledger, err := gsheet.New(ctx, config.GoogleSpreadsheetID, config.GoogleSheetName)
		if err != nil {
			f.logger.Warn("Failed to initialize Sheets ledger, continuing without it", log.FieldError, err)
		} else {
			res.Ledger = ledger
			f.logger.Info("Initialized Sheets ledger", "sheet", config.GoogleSheetName)
		}
	}
	return res, nil
}

func (f *DefaultFactory) createLocal(ctx context.Context, config Config, res *Result) error {
	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		res.Local = repo
		res.addCleanup(repo.Close)
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)

	case FirestoreBackend:
		fs, err := firestore.Open(ctx, config.FirestoreProjectID, config.FirestoreCollection)
		if err != nil {
			return fmt.Errorf("failed to initialize Firestore backend: %w", err)
		}
		res.Local = fs
		res.addCleanup(fs.Close)
		f.logger.Info("Initialized Firestore backend", "project", config.FirestoreProjectID)

	case MemoryBackend:
		res.Local = memory.New()
		f.logger.Info("Initialized memory backend")

	default:
		return fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	return nil
}
