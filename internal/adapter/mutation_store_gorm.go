package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	m "gooze.dev/pkg/mutrun/internal/model"
)

const catalogBatchSize = 500

type mutationRow struct {
	ID         int64 `gorm:"primaryKey"`
	ClassName  string `gorm:"size:512;index"`
	MethodName string `gorm:"size:512"`
	LineNumber int
	Operator   string `gorm:"size:128"`
	CreatedAt  time.Time
	Result     *resultRow `gorm:"foreignKey:MutationID"`
}

func (mutationRow) TableName() string { return "mutations" }

type resultRow struct {
	ID         int64 `gorm:"primaryKey"`
	MutationID int64 `gorm:"uniqueIndex"`
	Touched    bool
	Detected   bool
	Outcomes   []m.TestOutcome `gorm:"serializer:json"`
	CreatedAt  time.Time
}

func (resultRow) TableName() string { return "mutation_results" }

// GormMutationStore keeps the catalog in a relational database.
type GormMutationStore struct {
	db *gorm.DB
}

// OpenGormMutationStore connects to a mysql or postgres database and migrates
// the catalog tables.
func OpenGormMutationStore(driver, dsn string) (*GormMutationStore, error) {
	var dialector gorm.Dialector

	switch driver {
	case "mysql":
		dialector = mysql.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		slog.Error("Failed to open database", "driver", driver, "error", err)
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}

	store := NewGormMutationStore(db)
	if err := store.Migrate(); err != nil {
		return nil, err
	}

	return store, nil
}

// NewGormMutationStore wraps an existing gorm connection.
func NewGormMutationStore(db *gorm.DB) *GormMutationStore {
	return &GormMutationStore{db: db}
}

// Migrate creates or updates the catalog tables.
func (s *GormMutationStore) Migrate() error {
	if err := s.db.AutoMigrate(&mutationRow{}, &resultRow{}); err != nil {
		slog.Error("Failed to migrate catalog tables", "error", err)
		return fmt.Errorf("migrate catalog: %w", err)
	}

	return nil
}

// Close releases the underlying connection pool.
func (s *GormMutationStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}

// Add inserts mutations into the catalog.
func (s *GormMutationStore) Add(ctx context.Context, mutations ...m.Mutation) error {
	rows := make([]mutationRow, 0, len(mutations))
	for _, mutation := range mutations {
		rows = append(rows, mutationRow{
			ID:         mutation.ID,
			ClassName:  mutation.Descriptor.Class,
			MethodName: mutation.Descriptor.Method,
			LineNumber: mutation.Descriptor.Line,
			Operator:   mutation.Descriptor.Operator,
		})
	}

	if err := s.db.WithContext(ctx).CreateInBatches(rows, catalogBatchSize).Error; err != nil {
		return fmt.Errorf("insert mutations: %w", err)
	}

	return nil
}

// PendingMutations implements MutationStore.
func (s *GormMutationStore) PendingMutations(ctx context.Context, limit int) ([]m.Mutation, error) {
	var rows []mutationRow

	query := s.db.WithContext(ctx).
		Where("NOT EXISTS (SELECT 1 FROM mutation_results r WHERE r.mutation_id = mutations.id)").
		Order("mutations.id")
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&rows).Error; err != nil {
		slog.Error("Failed to query pending mutations", "error", err)
		return nil, fmt.Errorf("query pending mutations: %w", err)
	}

	mutations := make([]m.Mutation, 0, len(rows))
	for _, row := range rows {
		mutations = append(mutations, row.toMutation())
	}

	return mutations, nil
}

// MutationsByID implements MutationStore.
func (s *GormMutationStore) MutationsByID(ctx context.Context, ids []int64) ([]m.Mutation, error) {
	byID, err := s.fetch(ctx, ids)
	if err != nil {
		return nil, err
	}

	mutations := make([]m.Mutation, 0, len(ids))

	for _, id := range ids {
		row, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: id %d", ErrMutationNotFound, id)
		}

		mutations = append(mutations, row.toMutation())
	}

	return mutations, nil
}

// Catalog implements MutationStore. Ids are listed first and fetched in
// batches; an id that disappears between the two steps is passed as nil.
func (s *GormMutationStore) Catalog(ctx context.Context, fn func(mutation *m.Mutation) error) error {
	var ids []int64
	if err := s.db.WithContext(ctx).Model(&mutationRow{}).Order("id").Pluck("id", &ids).Error; err != nil {
		return fmt.Errorf("list mutation ids: %w", err)
	}

	for start := 0; start < len(ids); start += catalogBatchSize {
		end := min(start+catalogBatchSize, len(ids))
		batch := ids[start:end]

		byID, err := s.fetch(ctx, batch)
		if err != nil {
			return err
		}

		for _, id := range batch {
			row, ok := byID[id]
			if !ok {
				if err := fn(nil); err != nil {
					return err
				}

				continue
			}

			mutation := row.toMutation()
			if err := fn(&mutation); err != nil {
				return err
			}
		}
	}

	return nil
}

// SaveResult implements MutationStore.
func (s *GormMutationStore) SaveResult(ctx context.Context, result m.ExecutionResult) error {
	row := resultRow{
		MutationID: result.MutationID,
		Touched:    result.Touched,
		Detected:   result.Detected,
		Outcomes:   result.Outcomes,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "mutation_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"touched", "detected", "outcomes"}),
	}).Create(&row).Error
	if err != nil {
		slog.Error("Failed to save result", "mutationID", result.MutationID, "error", err)
		return fmt.Errorf("save result for mutation %d: %w", result.MutationID, err)
	}

	return nil
}

func (s *GormMutationStore) fetch(ctx context.Context, ids []int64) (map[int64]mutationRow, error) {
	var rows []mutationRow

	err := s.db.WithContext(ctx).Preload("Result").Where("id IN ?", ids).Find(&rows).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		slog.Error("Failed to fetch mutations", "count", len(ids), "error", err)
		return nil, fmt.Errorf("fetch mutations: %w", err)
	}

	byID := make(map[int64]mutationRow, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}

	return byID, nil
}

func (r mutationRow) toMutation() m.Mutation {
	mutation := m.Mutation{
		ID: r.ID,
		Descriptor: m.Descriptor{
			Class:    r.ClassName,
			Method:   r.MethodName,
			Line:     r.LineNumber,
			Operator: r.Operator,
		},
		Status: m.StatusPending,
	}

	if r.Result != nil {
		mutation.Status = m.StatusDone
		mutation.Result = &m.ExecutionResult{
			MutationID: r.ID,
			Touched:    r.Result.Touched,
			Detected:   r.Result.Detected,
			Outcomes:   r.Result.Outcomes,
		}
	}

	return mutation
}
