// Package audit writes security events to ClickHouse for offline analysis.
// Recording is best effort: a failed insert is logged and the request
// proceeds, since the source of truth for account state lives elsewhere.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/awaisamjad-SE/Real-MFA-1/internal/client"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/util"
)

// Action names the security-relevant operations worth an audit row.
type Action string

const (
	ActionLoginSuccess      Action = "login_success"
	ActionLoginFailed       Action = "login_failed"
	ActionLoginBlocked      Action = "login_blocked"
	ActionMFAChallenge      Action = "mfa_challenge"
	ActionMFAVerified       Action = "mfa_verified"
	ActionMFAFailed         Action = "mfa_failed"
	ActionDeviceVerified    Action = "device_verified"
	ActionDeviceTrusted     Action = "device_trusted"
	ActionDeviceRevoked     Action = "device_revoked"
	ActionDeviceCompromised Action = "device_compromised"
	ActionSessionRevoked    Action = "session_revoked"
	ActionPasswordChanged   Action = "password_changed"
	ActionPasswordReset     Action = "password_reset"
	ActionAccountLocked     Action = "account_locked"
)

// Entry is one audit row.
type Entry struct {
	UserID          uuid.UUID
	Action          Action
	FingerprintHash string
	IP              string
	UserAgent       string
	Detail          string
	OccurredAt      time.Time
}

const (
	insertQuery = `INSERT INTO security_events
		(event_id, user_id, action, fingerprint_hash, ip, user_agent, detail, occurred_at)`

	createTableQuery = `CREATE TABLE IF NOT EXISTS security_events (
		event_id         String,
		user_id          String,
		action           LowCardinality(String),
		fingerprint_hash String,
		ip               String,
		user_agent       String,
		detail           String,
		occurred_at      DateTime64(3, 'UTC')
	) ENGINE = MergeTree()
	PARTITION BY toYYYYMM(occurred_at)
	ORDER BY (user_id, occurred_at)
	TTL toDateTime(occurred_at) + INTERVAL 1 YEAR`

	flushInterval = 5 * time.Second
	maxBuffered   = 256
	flushTimeout  = 10 * time.Second
)

// Recorder buffers entries and flushes them to ClickHouse in batches.
// A nil Recorder (or one built without a client) silently drops entries.
type Recorder struct {
	client *client.ClickHouseClient

	mu      sync.Mutex
	pending [][]interface{}

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func NewRecorder(ch *client.ClickHouseClient) *Recorder {
	r := &Recorder{
		client: ch,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	if ch != nil {
		r.ensureSchema()
		go r.loop()
	} else {
		close(r.done)
	}
	return r
}

func (r *Recorder) ensureSchema() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := r.client.Exec(ctx, createTableQuery); err != nil {
		util.Warn("failed to ensure audit table", util.ErrorField(err))
	}
}

// Record queues an entry for the next flush. Never blocks on the database.
func (r *Recorder) Record(e Entry) {
	if r == nil || r.client == nil {
		return
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	row := []interface{}{
		uuid.New().String(), e.UserID.String(), string(e.Action),
		e.FingerprintHash, e.IP, e.UserAgent, e.Detail, e.OccurredAt,
	}

	r.mu.Lock()
	r.pending = append(r.pending, row)
	full := len(r.pending) >= maxBuffered
	r.mu.Unlock()

	if full {
		go r.flush()
	}
}

func (r *Recorder) loop() {
	defer close(r.done)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.flush()
		case <-r.stop:
			r.flush()
			return
		}
	}
}

func (r *Recorder) flush() {
	r.mu.Lock()
	rows := r.pending
	r.pending = nil
	r.mu.Unlock()

	if len(rows) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	if err := r.client.BatchInsert(ctx, insertQuery, rows); err != nil {
		util.Error("failed to flush audit batch",
			util.Int("rows", len(rows)),
			util.ErrorField(err),
		)
	}
}

// Close flushes outstanding entries and stops the background loop.
func (r *Recorder) Close() {
	if r == nil || r.client == nil {
		return
	}
	r.stopOnce.Do(func() { close(r.stop) })
	<-r.done
}
