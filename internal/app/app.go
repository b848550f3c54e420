// README: Process wiring; builds stores, dispatchers and the order service from config.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"gigmarket/internal/config"
	"gigmarket/internal/infra"
	"gigmarket/internal/modules/chat"
	"gigmarket/internal/modules/directory"
	"gigmarket/internal/modules/notification"
	"gigmarket/internal/modules/order"
	"gigmarket/internal/modules/payment"
	"gigmarket/internal/modules/pricing"
)

// App holds the wired services of one process.
type App struct {
	Orders     *order.Service
	Outbox     *order.Outbox
	Reconciler *payment.Reconciler
	Verifier   infra.TokenVerifier
	// Locker is nil without Redis; sweeps then run on every replica.
	Locker order.Locker

	closers []func() error
}

// Build wires the order service for cfg. Firestore mode needs a Firebase
// project; memory mode runs self-contained with dev tokens.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	a := &App{}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()
	var (
		repo      order.Repository
		dir       order.Directory
		notifier  order.Notifier
		chatSink  order.ChatSender
		rdb       *redis.Client
		pool      *pgxpool.Pool
		paymentGW *payment.MercadoPagoGateway
	)

	if cfg.Redis.Addr != "" {
		rdb = infra.NewRedis(cfg.Redis.Addr)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		a.closers = append(a.closers, rdb.Close)
		a.Locker = infra.NewRedisLocker(rdb)
	}

	switch cfg.Order.Store {
	case config.StoreFirestore:
		if !cfg.FirebaseEnabled() {
			return nil, errors.New("FIREBASE_PROJECT_ID is required for ORDER_STORE=firestore")
		}
		fb, err := infra.NewFirebase(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile, cfg.Firebase.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("firebase init: %w", err)
		}
		a.closers = append(a.closers, fb.Close)
		if a.Verifier, err = infra.NewFirebaseVerifier(ctx, fb); err != nil {
			return nil, err
		}
		repo = order.NewFirestoreStore(fb.Firestore)
		dir = directory.NewFirestoreDirectory(fb.Firestore)
		if rdb != nil {
			dir = directory.NewCache(dir, rdb, cfg.Directory.CacheTTL, logger)
		}
		notifier = notification.NewDispatcher(notification.NewFirestoreInbox(fb.Firestore), fb.Messaging, logger)
		if fb.Database != nil {
			chatSink = chat.NewDispatcher(chat.NewRTDBStore(fb.Database), logger)
		} else {
			logger.Warn("FIREBASE_DATABASE_URL not set; order chat messages are disabled")
		}
	case config.StoreMemory:
		repo = order.NewMemoryStore()
		memDir := directory.NewMemoryDirectory()
		if cfg.Directory.File != "" {
			if err := memDir.LoadFile(cfg.Directory.File); err != nil {
				return nil, err
			}
		}
		dir = memDir
		a.Verifier = infra.DevVerifier{}
		logger.Warn("running with the in-memory order store; data is lost on exit")
	}
	repo = order.NewRetryingStore(repo, order.DefaultRetryPolicy, logger)

	opts := []order.Option{
		order.WithDirectory(dir),
		order.WithLogger(logger),
		order.WithSweepBatchSize(cfg.Order.SweepBatchSize),
	}

	if cfg.DB.DSN != "" {
		if pool, err = infra.NewDB(ctx, cfg.DB.DSN); err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		opts = append(opts, order.WithEventLog(order.NewPgEventLog(pool)))
	}

	fees := pricing.NewService(cfg.Order.PlatformFeePercent, storeOrNil(pool), logger)
	if err := fees.Refresh(ctx, cfg.Order.Currency); err != nil {
		return nil, err
	}
	opts = append(opts, order.WithPricing(fees))

	paymentGW, err = payment.NewMercadoPagoGateway(cfg.Payment.AccessToken, cfg.Payment.NotificationURL, cfg.Payment.Mock, logger)
	switch {
	case err == nil:
		opts = append(opts, order.WithPaymentGateway(paymentGW))
	case errors.Is(err, payment.ErrMissingAccessToken) && cfg.Env != config.EnvProduction:
		logger.Warn("payment gateway disabled; checkout returns no payment link")
		paymentGW = nil
	default:
		return nil, err
	}

	a.Outbox = order.NewOutbox(notifier, chatSink, logger).SetAsync(true)
	opts = append(opts, order.WithOutbox(a.Outbox))

	a.Orders = order.NewService(repo, order.NewDeadlines(cfg.PaymentTimeout()), opts...)
	if paymentGW != nil {
		a.Reconciler = payment.NewReconciler(paymentGW, a.Orders, logger)
	}
	return a, nil
}

func storeOrNil(pool *pgxpool.Pool) *pricing.Store {
	if pool == nil {
		return nil
	}
	return pricing.NewStore(pool)
}

// Close waits for pending notifications, then releases clients in reverse order.
func (a *App) Close() error {
	a.Outbox.Wait()
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}
