// Package storage persists queue entries in Redis and rooms, pairings,
// relationships and messages in SQL. Every method is one atomic step:
// a Lua script, a MULTI pipeline, a conditional UPDATE/INSERT or a transaction.
package storage

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"strangerchat/backend/internal/config"
	"strangerchat/backend/internal/models"
)

// QueueStore is the Redis side: waiting entries and match lookups.
type QueueStore interface {
	UpsertQueueEntry(ctx context.Context, e models.QueueEntry) error
	RemoveQueueEntry(ctx context.Context, p models.Participant) (bool, error)
	GetQueueEntry(ctx context.Context, p models.Participant) (*models.QueueEntry, error)
	QueuePosition(ctx context.Context, p models.Participant) (*models.QueuePosition, error)
	ListQueue(ctx context.Context) ([]models.QueueEntry, error)
	TouchQueueEntry(ctx context.Context, p models.Participant, at time.Time) (bool, error)
	ClaimPair(ctx context.Context, self, candidate models.QueueEntry) (ClaimResult, error)
	RestoreQueueEntries(ctx context.Context, entries ...models.QueueEntry) error
	EvictIfStale(ctx context.Context, p models.Participant, threshold time.Time) (bool, error)
	StaleQueueMembers(ctx context.Context, threshold time.Time) ([]models.Participant, error)
	SetMatchLookup(ctx context.Context, p models.Participant, pairingID string, ttl time.Duration) error
	GetMatchLookup(ctx context.Context, p models.Participant) (string, error)
}

// RoomStore covers pairings and the room state machine.
type RoomStore interface {
	CreatePairing(ctx context.Context, a, b models.Participant) (*models.Pairing, error)
	GetPairing(ctx context.Context, id string) (*models.Pairing, error)
	CreateRoomForPairing(ctx context.Context, pairingID string, actor models.Participant) (*models.ChatRoom, bool, error)
	CreateRoom(ctx context.Context, a, b models.Participant, roomType models.RoomType) (*models.ChatRoom, error)
	GetRoomByID(ctx context.Context, roomID string) (*models.ChatRoom, error)
	CloseRoom(ctx context.Context, roomID string, actor models.Participant, temporary bool) (*models.ChatRoom, bool, error)
	ForceCloseRoom(ctx context.Context, roomID string) (*models.ChatRoom, bool, error)
	ReopenRoom(ctx context.Context, roomID string, actor models.Participant) (*models.ChatRoom, error)
	GetActiveRandomRoomFor(ctx context.Context, p models.Participant) (*models.ChatRoom, error)
	GetActiveRoomsFor(ctx context.Context, p models.Participant) ([]models.ChatRoom, error)
	GetProfile(ctx context.Context, p models.Participant) (*models.Profile, error)
	SaveProfile(ctx context.Context, profile *models.Profile) error
}

// MessageStore is the durable message log.
type MessageStore interface {
	AppendMessage(ctx context.Context, msg *models.Message) (bool, error)
	GetChatHistory(ctx context.Context, roomID string, afterID uint, limit int) ([]models.Message, error)
	GetMessage(ctx context.Context, id uint) (*models.Message, error)
}

// RelationshipStore covers friend requests, friendships, blocks and reports.
type RelationshipStore interface {
	HasBlockBetween(ctx context.Context, a, b models.Participant) (bool, error)
	BlockedWith(ctx context.Context, p models.Participant) (map[string]bool, error)
	CreateFriendRequest(ctx context.Context, req *models.FriendRequest) error
	AnswerFriendRequest(ctx context.Context, requestID string, responder models.Participant, accept bool) (*FriendRequestOutcome, error)
	Unfriend(ctx context.Context, friendshipID string, actor models.Participant) (*models.Friendship, *models.ChatRoom, error)
	BlockPair(ctx context.Context, block *models.Block) (*BlockOutcome, error)
	DeleteBlock(ctx context.Context, blocker, blocked models.Participant) (bool, error)
	SaveReport(ctx context.Context, report *models.Report) error
	ListReports(ctx context.Context, limit int) ([]models.Report, error)
	ListFriendships(ctx context.Context, p models.Participant) ([]models.Friendship, error)
	ListPendingRequests(ctx context.Context, p models.Participant) ([]models.FriendRequest, error)
}

type Storage interface {
	QueueStore
	RoomStore
	MessageStore
	RelationshipStore
}

type Service struct {
	DB    *gorm.DB
	Redis *redis.Client
	// Now is the clock used for timestamps written by this package.
	Now func() time.Time
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{
		DB:    db,
		Redis: rdb,
		Now:   func() time.Time { return time.Now().UTC() },
	}
}

// AllModels lists every table the service owns, for AutoMigrate.
func AllModels() []any {
	return []any{
		&models.Profile{},
		&models.Pairing{},
		&models.ChatRoom{},
		&models.Message{},
		&models.FriendRequest{},
		&models.Friendship{},
		&models.Block{},
		&models.Report{},
	}
}

// OpenDB connects with the configured driver and migrates the schema.
func OpenDB(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DB.Driver {
	case "postgres", "":
		dialector = postgres.Open(cfg.DB.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DB.DSN)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DB.Driver)
	}

	logLevel := gormlogger.Warn
	if cfg.DB.LogSQL {
		logLevel = gormlogger.Info
	}
	gormLog := gormlogger.New(log.New(os.Stdout, "\r\n", log.LstdFlags), gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logLevel,
		IgnoreRecordNotFoundError: true,
	})
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormLog,
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	if cfg.DB.Driver == "sqlite" {
		// SQLite allows one writer; a single connection serializes transactions.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(AllModels()...); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return db, nil
}

// OpenRedis builds the client and checks the connection.
func OpenRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	opts := &redis.Options{Addr: cfg.Redis.Addr}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect redis: %w", err)
	}
	return rdb, nil
}

// lockPair serialises the transactions that pair, seat or block a and b, so
// a block and a pairing or room for the same two participants cannot commit
// past each other. SQLite runs one writer at a time and needs no lock.
func lockPair(tx *gorm.DB, a, b models.Participant) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", models.PairKey(a, b)).Error
}

// occupantOf is the SQL predicate "p holds a slot of the room".
func occupantOf(p models.Participant) (string, []any) {
	return "((slot1_kind = ? AND slot1_id = ?) OR (slot2_kind = ? AND slot2_id = ?))",
		[]any{string(p.Kind), p.ID, string(p.Kind), p.ID}
}

// pairOf is the SQL predicate "the a_/b_ columns hold p".
func pairOf(p models.Participant) (string, []any) {
	return "((a_kind = ? AND a_id = ?) OR (b_kind = ? AND b_id = ?))",
		[]any{string(p.Kind), p.ID, string(p.Kind), p.ID}
}
