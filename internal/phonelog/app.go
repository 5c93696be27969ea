package phonelog

import (
	"context"
	"errors"
	"net/http"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/actionlog"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/call"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/circuitbreak"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/database"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/deadletter"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/healthchecker"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/httpapi"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/ingest"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/kafka"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/keylock"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/logging"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/mqtt"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/notify"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/report"
	"github.com/panjf2000/ants/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	DBConn               *gorm.DB
	RedisClient          *redis.Client
	KafkaProducer        *kafka.Producer
	KafkaConsumer        *kafka.Consumer
	MQTTPublisher        *mqtt.Publisher
	WorkerPool           *ants.Pool
	Notifier             *notify.Notifier
	Processor            *call.Processor
	Pipeline             *ingest.Pipeline
	DeadLetterService    *deadletter.DeadLetterService
	DeadLetterWorker     *deadletter.DeadLetterWorker
	HTTPServer           *http.Server
	HealthCheckerService *healthchecker.Healthchecker
}

func NewApp(ctxCancelFunc context.CancelFunc) (*App, error) {
	logging.Logger.Info("[NewApp] Initializing phonelog application...")

	app := &App{
		HealthCheckerService: healthchecker.NewService(ctxCancelFunc),
	}

	err := app.initDatabase()
	if err != nil {
		return nil, err
	}

	locker, err := app.initLocker()
	if err != nil {
		app.shutdown()
		return nil, err
	}

	err = app.initNotifier()
	if err != nil {
		app.shutdown()
		return nil, err
	}

	err = app.initServices(locker)
	if err != nil {
		app.shutdown()
		return nil, err
	}

	err = app.initKafkaConsumer()
	if err != nil {
		app.shutdown()
		return nil, err
	}

	logging.Logger.Info("[NewApp] Initializing circuit breakers...")
	circuitbreak.Init()
	logging.Logger.Info("[NewApp] Circuit breakers initialized")

	return app, nil
}

func (app *App) initDatabase() error {
	dbConn, err := database.NewDatabase()
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to initialize database", zap.Error(err))
		return err
	}

	app.DBConn = dbConn

	logging.Logger.Info("[NewApp] Database connection established", zap.String("driver", config.Conf.DBDriver))

	if !config.Conf.DBAutoMigrate {
		return nil
	}

	if config.Conf.DBDriver == config.DriverPostgres {
		err = database.Migrate(database.GetURL(), database.DirectionUp)
	} else {
		err = database.AutoMigrate(dbConn, &call.Record{}, &actionlog.Entry{}, &deadletter.Event{})
	}

	if err != nil {
		logging.Logger.Error("[NewApp] Failed to migrate database", zap.Error(err))
		_ = database.Close(dbConn)

		return err
	}

	logging.Logger.Info("[NewApp] Database schema is up to date")

	return nil
}

func (app *App) initLocker() (keylock.Locker, error) {
	local := keylock.NewKeyedMutex()

	if !config.Conf.RedisEnabled() {
		logging.Logger.Info("[NewApp] Using in-process call locks")
		return local, nil
	}

	redisClient, err := keylock.NewRedisClient(context.Background(), config.Conf.RedisAddr)
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to connect to Redis", zap.Error(err))
		return nil, err
	}

	app.RedisClient = redisClient

	logging.Logger.Info("[NewApp] Using Redis call locks", zap.String("addr", config.Conf.RedisAddr))

	return keylock.Chain{local, keylock.NewRedisLocker(redisClient)}, nil
}

func (app *App) initNotifier() error {
	var targets []notify.Target

	if config.Conf.KafkaEnabled() {
		logging.Logger.Info("[NewApp] Creating Kafka producer...")

		kafkaProducer, err := kafka.NewProducer()
		if err != nil {
			logging.Logger.Error("[NewApp] Failed to create Kafka producer", zap.Error(err))
			return err
		}

		app.KafkaProducer = kafkaProducer
		targets = append(targets, notify.KafkaTarget(kafkaProducer, config.Conf.KafkaCallTopic))
	}

	if config.Conf.MQTTEnabled() {
		logging.Logger.Info("[NewApp] Creating MQTT publisher...")

		mqttPublisher, err := mqtt.NewPublisher(mqtt.OptionsFromConfig())
		if err != nil {
			logging.Logger.Error("[NewApp] Failed to create MQTT publisher", zap.Error(err))
			return err
		}

		app.MQTTPublisher = mqttPublisher
		targets = append(targets, notify.MQTTTarget(mqttPublisher, config.Conf.MQTTTopicPrefix))
	}

	notifier, err := notify.NewNotifier(config.Conf.PoolSize, targets...)
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to create notifier", zap.Error(err))
		return err
	}

	app.Notifier = notifier

	logging.Logger.Info("[NewApp] Notifier created", zap.Int("targets", len(targets)))

	return nil
}

func (app *App) initServices(locker keylock.Locker) error {
	app.Processor = call.NewProcessor(call.NewRepository(app.DBConn), call.WithLocker(locker))

	app.DeadLetterService = deadletter.NewService(deadletter.NewRepository(app.DBConn))

	app.Pipeline = ingest.NewPipeline(app.Processor,
		ingest.WithActionLog(actionlog.NewRepository(app.DBConn)),
		ingest.WithDeadLetter(app.DeadLetterService),
		ingest.WithNotifier(app.Notifier),
	)

	app.DeadLetterService.SetReplayer(app.Pipeline)

	deadletterWorker, err := deadletter.NewWorker(app.DeadLetterService)
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to create dead letter worker", zap.Error(err))
		return err
	}

	app.DeadLetterWorker = deadletterWorker

	handler := &httpapi.Handler{
		Events:     app.Pipeline,
		Reports:    report.NewRepository(app.DBConn),
		ActionLogs: actionlog.NewRepository(app.DBConn),
		Ping: func(ctx context.Context) error {
			return database.Ping(ctx, app.DBConn)
		},
	}

	app.HTTPServer = httpapi.NewServer(httpapi.NewRouter(handler, config.Conf.ReportsJWTSecret))

	logging.Logger.Info("[NewApp] Services created")

	return nil
}

func (app *App) initKafkaConsumer() error {
	if !config.Conf.KafkaEnabled() || config.Conf.KafkaEventTopic == "" {
		return nil
	}

	logging.Logger.Info("[NewApp] Creating Kafka event consumer...")

	kafkaConsumer, err := kafka.NewConsumer()
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to create Kafka consumer", zap.Error(err))
		return err
	}

	app.KafkaConsumer = kafkaConsumer

	workerPool, err := ants.NewPool(config.Conf.PoolSize, ants.WithPreAlloc(true))
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to create worker pool", zap.Error(err))
		return err
	}

	app.WorkerPool = workerPool

	logging.Logger.Info("[NewApp] Kafka event consumer created", zap.Int("pool_size", config.Conf.PoolSize))

	return nil
}

// Run serves until ctx is canceled or a component fails, then releases every
// resource.
func (app *App) Run(ctx context.Context) error {
	logging.Logger.Info("[Run] Starting app goroutines...")

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		app.HealthCheckerService.Monitor(groupCtx)
		return nil
	})

	group.Go(func() error {
		app.DeadLetterWorker.Run(groupCtx)
		return nil
	})

	group.Go(func() error {
		logging.Logger.Info("[Run] Starting HTTP server", zap.String("addr", app.HTTPServer.Addr))

		err := app.HTTPServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Logger.Error("[Run] HTTP server failed", zap.Error(err))
			return err
		}

		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return app.HTTPServer.Shutdown(shutdownCtx)
	})

	if app.KafkaConsumer != nil {
		group.Go(func() error {
			logging.Logger.Info("[Run] Starting Kafka event consumer",
				zap.String("topic", config.Conf.KafkaEventTopic),
			)

			return app.KafkaConsumer.Consume(groupCtx, config.Conf.KafkaEventTopic, app.EventHandler)
		})
	}

	err := group.Wait()

	logging.Logger.Warn("[Run] App goroutines returned, beginning shutdown...")
	app.shutdown()

	return err
}

func (app *App) shutdown() {
	if app.KafkaConsumer != nil {
		_ = app.KafkaConsumer.Close()
	}

	if app.WorkerPool != nil {
		logging.Logger.Info("[Run] Releasing worker pool...",
			zap.Int("running_workers", app.WorkerPool.Running()),
		)
		app.WorkerPool.Release()
	}

	if app.DeadLetterWorker != nil {
		app.DeadLetterWorker.Close()
	}

	if app.Notifier != nil {
		app.Notifier.Close()
	}

	if app.KafkaProducer != nil {
		_ = app.KafkaProducer.Close()
	}

	if app.MQTTPublisher != nil {
		_ = app.MQTTPublisher.Close()
	}

	if app.RedisClient != nil {
		err := app.RedisClient.Close()
		if err != nil {
			logging.Logger.Error("[Run] Failed to close Redis client", zap.String("error", err.Error()))
		}
	}

	if app.DBConn != nil {
		err := database.Close(app.DBConn)
		if err != nil {
			logging.Logger.Error("[Run] Failed to close database", zap.String("error", err.Error()))
		}
	}

	logging.Logger.Info("[Run] ===== App shutdown complete =====")
}
