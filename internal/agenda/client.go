package agenda

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	// ErrSlotTaken means the agenda backend rejected the booking because the
	// slot was claimed by someone else after our snapshot was taken.
	ErrSlotTaken = errors.New("slot already taken")

	ErrUnexpectedStatus = errors.New("unexpected status from agenda backend")
)

const openSlotsCacheKey = "agenda:open_slots"

// Slot is one bookable calendar opening in the agenda backend.
// Within one assignment run a slot is identified by its (Date, Time) pair.
type Slot struct {
	Date            string `json:"date"`             // YYYY-MM-DD
	Time            string `json:"time"`             // HH:MM
	DurationMinutes int    `json:"duration_minutes"` // slot length
}

// Key returns the slot's dedup identity for one assignment run.
func (s Slot) Key() string {
	return s.Date + "T" + s.Time
}

// Booking is the appointment the agenda backend created for a slot.
type Booking struct {
	ID        uuid.UUID `json:"id"`
	PatientID uuid.UUID `json:"patient_id"`
	Date      string    `json:"date"`
	Time      string    `json:"time"`
	Status    string    `json:"status"`
}

// Client calls the agenda (calendar) backend. It is the service's only view of
// open slots and the only way to turn a proposed assignment into a real
// appointment.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     zerolog.Logger

	redis    *redis.Client
	cacheTTL time.Duration
}

// NewClient constructs a client with baseURL and API key.
func NewClient(baseURL, apiKey string, logger zerolog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger.With().Str("component", "agenda_client").Logger(),
	}
}

// UseRedisCache configures optional Redis caching for the open-slots read.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

// OpenSlots fetches all currently open calendar slots.
func (c *Client) OpenSlots(ctx context.Context) ([]Slot, error) {
	endpoint := fmt.Sprintf("%s/api/v1/slots/open", c.baseURL)

	var wrap struct {
		Slots []Slot `json:"slots"`
	}

	if c.readCache(ctx, openSlotsCacheKey, &wrap) {
		return wrap.Slots, nil
	}

	if err := c.doGet(ctx, endpoint, &wrap); err != nil {
		return nil, fmt.Errorf("fetch open slots: %w", err)
	}
	c.writeCache(ctx, openSlotsCacheKey, wrap)
	return wrap.Slots, nil
}

type bookRequest struct {
	PatientID       string `json:"patient_id"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	DurationMinutes int    `json:"duration_minutes"`
}

// BookAppointment asks the agenda backend to book slot for patientID.
// A 409 from the backend maps to ErrSlotTaken.
func (c *Client) BookAppointment(ctx context.Context, patientID uuid.UUID, slot Slot) (*Booking, error) {
	endpoint := fmt.Sprintf("%s/api/v1/appointments", c.baseURL)
	body := bookRequest{
		PatientID:       patientID.String(),
		Date:            slot.Date,
		Time:            slot.Time,
		DurationMinutes: slot.DurationMinutes,
	}

	var booking Booking
	if err := c.doPost(ctx, endpoint, body, &booking); err != nil {
		return nil, err
	}

	// Booking a slot invalidates any cached open-slot snapshot.
	c.dropCache(ctx, openSlotsCacheKey)

	c.logger.Debug().
		Str("patient_id", patientID.String()).
		Str("slot", slot.Key()).
		Msg("appointment booked")

	return &booking, nil
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.cacheTTL).Err()
}

func (c *Client) dropCache(ctx context.Context, key string) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Del(ctx, key).Err()
}

func (c *Client) doGet(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	c.addHeaders(req)
	return c.do(req, out)
}

func (c *Client) doPost(ctx context.Context, endpoint string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(data)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.addHeaders(req)
	return c.do(req, out)
}

func (c *Client) addHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("agenda request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict:
		io.Copy(io.Discard, resp.Body)
		return ErrSlotTaken
	case resp.StatusCode >= 400:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %d %s", ErrUnexpectedStatus, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode agenda response: %w", err)
	}
	return nil
}
