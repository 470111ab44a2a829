package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/HomeMonitor/internal/domain/motion"
)

// Store implements database.MotionStore using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const eventColumns = `id, sensor_id, event_type, detected_at, location`

func scanEvent(row scannable) (motion.Event, error) {
	var ev motion.Event
	if err := row.Scan(&ev.ID, &ev.SensorID, &ev.EventType, &ev.DetectedAt, &ev.Location); err != nil {
		return motion.Event{}, err
	}
	ev.DetectedAt = ev.DetectedAt.UTC()
	return ev, nil
}

func (s *Store) SaveEvent(ctx context.Context, ev motion.Event) (motion.Event, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO motion_events (sensor_id, event_type, detected_at, location)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+eventColumns,
		ev.SensorID, ev.EventType, ev.DetectedAt.UTC(), ev.Location)

	saved, err := scanEvent(row)
	if err != nil {
		return motion.Event{}, fmt.Errorf("save event for %s: %w", ev.SensorID, err)
	}
	return saved, nil
}

func (s *Store) GetEvent(ctx context.Context, id int64) (*motion.Event, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM motion_events WHERE id = $1`, id)

	ev, err := scanEvent(row)
	if err != nil {
		return nil, notFoundWrap(err, "get event %d", id)
	}
	return &ev, nil
}

func (s *Store) ListEvents(ctx context.Context, f motion.ListFilter) ([]motion.Event, error) {
	// LIMIT NULL means no limit.
	var limit *int
	if f.Limit > 0 {
		limit = &f.Limit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventColumns+` FROM motion_events
		 ORDER BY detected_at DESC, id DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []motion.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return orEmpty(events), nil
}

func (s *Store) ListSensors(ctx context.Context) ([]motion.SensorSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT sensor_id, MAX(detected_at), COUNT(*)
		 FROM motion_events
		 GROUP BY sensor_id
		 ORDER BY MAX(detected_at) DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sensors: %w", err)
	}
	defer rows.Close()

	var sensors []motion.SensorSummary
	for rows.Next() {
		var ss motion.SensorSummary
		if err := rows.Scan(&ss.SensorID, &ss.LastSeen, &ss.EventCount); err != nil {
			return nil, fmt.Errorf("scan sensor: %w", err)
		}
		ss.LastSeen = ss.LastSeen.UTC()
		sensors = append(sensors, ss)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sensors: %w", err)
	}
	return orEmpty(sensors), nil
}

func (s *Store) AggregateStats(ctx context.Context, now time.Time) (motion.DashboardStats, error) {
	var st motion.DashboardStats
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE detected_at >= $1),
		        COUNT(*) FILTER (WHERE detected_at >= $2),
		        COUNT(DISTINCT sensor_id)
		 FROM motion_events`,
		now.Add(-24*time.Hour), now.Add(-time.Hour),
	).Scan(&st.TotalEvents, &st.EventsLast24h, &st.EventsLastHour, &st.ActiveSensors)
	if err != nil {
		return motion.DashboardStats{}, fmt.Errorf("aggregate stats: %w", err)
	}
	return st, nil
}

func (s *Store) DeleteAllEvents(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM motion_events`)
	if err != nil {
		return 0, fmt.Errorf("delete events: %w", err)
	}
	return tag.RowsAffected(), nil
}
