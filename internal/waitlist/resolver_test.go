package waitlist

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicbase/clinic-scheduling/internal/booking"
	"github.com/clinicbase/clinic-scheduling/internal/notify"
	redisclient "github.com/clinicbase/clinic-scheduling/internal/redis"
	"github.com/clinicbase/clinic-scheduling/internal/schedule"
)

func at(h, m int) time.Time {
	return time.Date(2026, 9, 7, h, m, 0, 0, time.UTC)
}

// fakeWaitlistRepo keeps entries in a slice; ListMatching returns them as-is,
// standing in for the priority ordering the SQL does.
type fakeWaitlistRepo struct {
	entries []*Entry
	btx     *fakeBookingTx

	stamped []uuid.UUID // entry IDs in offer order
}

func (r *fakeWaitlistRepo) Create(_ context.Context, e *Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.Status = StatusPending
	r.entries = append(r.entries, e)
	return nil
}

func (r *fakeWaitlistRepo) GetByID(_ context.Context, id uuid.UUID) (*Entry, error) {
	for _, e := range r.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, ErrEntryNotFound
}

func (r *fakeWaitlistRepo) Cancel(_ context.Context, id uuid.UUID) (*Entry, error) {
	for _, e := range r.entries {
		if e.ID == id {
			if e.Status != StatusPending {
				return nil, ErrClaimExpired
			}
			e.Status = StatusCancelled
			return e, nil
		}
	}
	return nil, ErrEntryNotFound
}

func (r *fakeWaitlistRepo) ListMatching(_ context.Context, _ uuid.UUID, _ *uuid.UUID, _, _ time.Time) ([]Entry, error) {
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		if e.Status == StatusPending {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (r *fakeWaitlistRepo) StampOffer(_ context.Context, id uuid.UUID, token uuid.UUID, doctorID uuid.UUID, start, end time.Time) error {
	for _, e := range r.entries {
		if e.ID == id {
			e.ClaimToken = &token
			e.OfferedDoctorID = &doctorID
			e.OfferedStart = &start
			e.OfferedEnd = &end
			r.stamped = append(r.stamped, id)
			return nil
		}
	}
	return ErrEntryNotFound
}

func (r *fakeWaitlistRepo) GetByToken(_ context.Context, token uuid.UUID) (*Entry, error) {
	for _, e := range r.entries {
		if e.ClaimToken != nil && *e.ClaimToken == token {
			copied := *e
			return &copied, nil
		}
	}
	return nil, ErrClaimExpired
}

func (r *fakeWaitlistRepo) InClaimTx(ctx context.Context, token uuid.UUID, fn func(ctx context.Context, e *Entry, btx booking.Tx) error) error {
	for _, e := range r.entries {
		if e.ClaimToken != nil && *e.ClaimToken == token {
			return fn(ctx, e, r.btx)
		}
	}
	return ErrClaimExpired
}

// fakeBookingTx is the slice of booking.Tx the claim path uses.
type fakeBookingTx struct {
	overlapping []booking.Appointment
	inserted    []*booking.Appointment
}

func (t *fakeBookingTx) GetByID(context.Context, uuid.UUID) (*booking.Appointment, error) {
	return nil, booking.ErrAppointmentNotFound
}

func (t *fakeBookingTx) LockOverlapping(_ context.Context, d booking.Draft, _ *uuid.UUID) ([]booking.Appointment, error) {
	out := append([]booking.Appointment(nil), t.overlapping...)
	for _, a := range t.inserted {
		if d.StartAt.Before(a.EndAt) && a.StartAt.Before(d.EndAt) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (t *fakeBookingTx) Insert(_ context.Context, a *booking.Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	t.inserted = append(t.inserted, a)
	return nil
}

func (t *fakeBookingTx) UpdateInterval(context.Context, uuid.UUID, time.Time, time.Time) (*booking.Appointment, error) {
	return nil, booking.ErrAppointmentNotFound
}

func (t *fakeBookingTx) UpdateStatus(context.Context, uuid.UUID, booking.Status, booking.Status) (*booking.Appointment, error) {
	return nil, booking.ErrAppointmentNotFound
}

func (t *fakeBookingTx) AppendEvent(context.Context, string, any) error {
	return nil
}

type fakeDoctors struct {
	name string
}

func (d *fakeDoctors) GetDoctor(_ context.Context, id uuid.UUID) (*schedule.Doctor, error) {
	if d.name == "" {
		return nil, schedule.ErrDoctorNotFound
	}
	return &schedule.Doctor{ID: id, Name: d.name, Active: true}, nil
}

type recordingNotifier struct {
	sent    []notify.Message
	sendErr error
	failOn  string
}

func (n *recordingNotifier) Send(_ context.Context, msg notify.Message) error {
	if n.sendErr != nil && (n.failOn == "" || n.failOn == msg.Recipient) {
		return n.sendErr
	}
	n.sent = append(n.sent, msg)
	return nil
}

type recordingInvalidator struct {
	calls int
}

func (c *recordingInvalidator) Invalidate(context.Context, uuid.UUID, *time.Time) error {
	c.calls++
	return nil
}

// claimLocker records lock keys; busy simulates a held lock.
type claimLocker struct {
	busy bool
	keys []string
}

func (l *claimLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l.keys = append(l.keys, key)
	if l.busy {
		return redisclient.ErrLockNotAcquired
	}
	return fn(ctx)
}

type resolverFixture struct {
	repo     *fakeWaitlistRepo
	locker   *claimLocker
	notifier *recordingNotifier
	cache    *recordingInvalidator
	resolver *Resolver
}

func newResolverFixture() *resolverFixture {
	f := &resolverFixture{
		repo:     &fakeWaitlistRepo{btx: &fakeBookingTx{}},
		locker:   &claimLocker{},
		notifier: &recordingNotifier{},
		cache:    &recordingInvalidator{},
	}
	f.resolver = NewResolver(f.repo, &fakeDoctors{name: "Dr. House"}, f.locker, f.cache, f.notifier, zerolog.Nop())
	return f
}

func pendingEntry(priority int, email string) *Entry {
	return &Entry{
		ID:           uuid.New(),
		PatientID:    uuid.New(),
		WindowStart:  at(8, 0),
		WindowEnd:    at(18, 0),
		Priority:     priority,
		Status:       StatusPending,
		PatientName:  "Patient " + email,
		PatientEmail: &email,
	}
}

func freedSlot(doctorID uuid.UUID) booking.CancelledEvent {
	return booking.CancelledEvent{
		AppointmentID: uuid.New(),
		DoctorID:      doctorID,
		StartAt:       at(10, 0),
		EndAt:         at(10, 30),
	}
}

func TestOfferFreedSlotOffersToAllMatches(t *testing.T) {
	f := newResolverFixture()
	urgent := pendingEntry(1, "urgent@example.com")
	routine := pendingEntry(5, "routine@example.com")
	f.repo.entries = []*Entry{urgent, routine}

	doctorID := uuid.New()
	if err := f.resolver.OfferFreedSlot(context.Background(), freedSlot(doctorID)); err != nil {
		t.Fatalf("OfferFreedSlot: %v", err)
	}

	if len(f.notifier.sent) != 2 {
		t.Fatalf("sent %d offers, want 2", len(f.notifier.sent))
	}
	if f.notifier.sent[0].Recipient != "urgent@example.com" {
		t.Errorf("first offer went to %s, want the best-ranked entry", f.notifier.sent[0].Recipient)
	}
	for i, msg := range f.notifier.sent {
		if msg.Template != notify.TemplateWaitlistOffer {
			t.Errorf("offer %d template = %s", i, msg.Template)
		}
		if tok, ok := msg.Data["claim_token"].(string); !ok || tok == "" {
			t.Errorf("offer %d carries no claim token", i)
		}
	}
	if urgent.ClaimToken == nil || routine.ClaimToken == nil {
		t.Error("both entries should have a stamped offer")
	}
	if *urgent.ClaimToken == *routine.ClaimToken {
		t.Error("claim tokens must be distinct per entry")
	}
}

func TestOfferFreedSlotNoMatches(t *testing.T) {
	f := newResolverFixture()

	if err := f.resolver.OfferFreedSlot(context.Background(), freedSlot(uuid.New())); err != nil {
		t.Fatalf("OfferFreedSlot: %v", err)
	}
	if len(f.notifier.sent) != 0 {
		t.Errorf("sent %d offers, want 0", len(f.notifier.sent))
	}
}

func TestOfferFreedSlotDeliveryFailureDoesNotBlockOthers(t *testing.T) {
	f := newResolverFixture()
	first := pendingEntry(1, "broken@example.com")
	second := pendingEntry(2, "fine@example.com")
	f.repo.entries = []*Entry{first, second}
	f.notifier.sendErr = errors.New("mailbox full")
	f.notifier.failOn = "broken@example.com"

	if err := f.resolver.OfferFreedSlot(context.Background(), freedSlot(uuid.New())); err != nil {
		t.Fatalf("OfferFreedSlot: %v", err)
	}
	if len(f.notifier.sent) != 1 || f.notifier.sent[0].Recipient != "fine@example.com" {
		t.Errorf("sent = %v, want the second offer delivered", f.notifier.sent)
	}
	if len(f.repo.stamped) != 2 {
		t.Errorf("stamped %d offers, want both regardless of delivery", len(f.repo.stamped))
	}
}

func TestConfirmClaimBooksAppointment(t *testing.T) {
	f := newResolverFixture()
	entry := pendingEntry(1, "winner@example.com")
	f.repo.entries = []*Entry{entry}

	doctorID := uuid.New()
	if err := f.resolver.OfferFreedSlot(context.Background(), freedSlot(doctorID)); err != nil {
		t.Fatalf("OfferFreedSlot: %v", err)
	}

	appt, err := f.resolver.ConfirmClaim(context.Background(), *entry.ClaimToken)
	if err != nil {
		t.Fatalf("ConfirmClaim: %v", err)
	}
	if appt.Status != booking.StatusPlanned {
		t.Errorf("status = %s, want planned", appt.Status)
	}
	if appt.DoctorID != doctorID {
		t.Errorf("doctor = %s, want %s", appt.DoctorID, doctorID)
	}
	if appt.PatientID == nil || *appt.PatientID != entry.PatientID {
		t.Error("appointment should belong to the waitlisted patient")
	}
	if entry.Status != StatusBooked {
		t.Errorf("entry status = %s, want booked", entry.Status)
	}
	if entry.AppointmentID == nil || *entry.AppointmentID != appt.ID {
		t.Error("entry should reference the booked appointment")
	}
	if f.cache.calls != 1 {
		t.Errorf("cache invalidations = %d, want 1", f.cache.calls)
	}
}

func TestConfirmClaimSecondClaimerLoses(t *testing.T) {
	f := newResolverFixture()
	entry := pendingEntry(1, "late@example.com")
	f.repo.entries = []*Entry{entry}

	if err := f.resolver.OfferFreedSlot(context.Background(), freedSlot(uuid.New())); err != nil {
		t.Fatalf("OfferFreedSlot: %v", err)
	}
	token := *entry.ClaimToken

	if _, err := f.resolver.ConfirmClaim(context.Background(), token); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if _, err := f.resolver.ConfirmClaim(context.Background(), token); !errors.Is(err, ErrClaimExpired) {
		t.Errorf("second claim err = %v, want ErrClaimExpired", err)
	}
}

func TestConfirmClaimIntervalAlreadyTaken(t *testing.T) {
	f := newResolverFixture()
	entry := pendingEntry(1, "unlucky@example.com")
	f.repo.entries = []*Entry{entry}

	doctorID := uuid.New()
	if err := f.resolver.OfferFreedSlot(context.Background(), freedSlot(doctorID)); err != nil {
		t.Fatalf("OfferFreedSlot: %v", err)
	}

	// A walk-in booked the interval between the offer and the claim.
	f.repo.btx.overlapping = []booking.Appointment{
		{ID: uuid.New(), DoctorID: doctorID, StartAt: at(10, 0), EndAt: at(10, 30), Status: booking.StatusPlanned},
	}

	if _, err := f.resolver.ConfirmClaim(context.Background(), *entry.ClaimToken); !errors.Is(err, ErrClaimExpired) {
		t.Errorf("err = %v, want ErrClaimExpired", err)
	}
	if entry.Status != StatusPending {
		t.Errorf("entry status = %s, losing a race must not consume the entry", entry.Status)
	}
	if len(f.repo.btx.inserted) != 0 {
		t.Error("no appointment should be created for a lost race")
	}
}

func TestConfirmClaimWithoutOffer(t *testing.T) {
	f := newResolverFixture()
	entry := pendingEntry(1, "early@example.com")
	token := uuid.New()
	entry.ClaimToken = &token // token but no offer state
	f.repo.entries = []*Entry{entry}

	if _, err := f.resolver.ConfirmClaim(context.Background(), token); !errors.Is(err, ErrClaimExpired) {
		t.Errorf("err = %v, want ErrClaimExpired", err)
	}
}

func TestConfirmClaimUnknownToken(t *testing.T) {
	f := newResolverFixture()

	if _, err := f.resolver.ConfirmClaim(context.Background(), uuid.New()); !errors.Is(err, ErrClaimExpired) {
		t.Errorf("err = %v, want ErrClaimExpired", err)
	}
}

func TestConfirmClaimRaceTwoEntries(t *testing.T) {
	f := newResolverFixture()
	fast := pendingEntry(1, "fast@example.com")
	slow := pendingEntry(2, "slow@example.com")
	f.repo.entries = []*Entry{fast, slow}

	// One cancellation offers the same freed interval to both entries.
	doctorID := uuid.New()
	if err := f.resolver.OfferFreedSlot(context.Background(), freedSlot(doctorID)); err != nil {
		t.Fatalf("OfferFreedSlot: %v", err)
	}

	if _, err := f.resolver.ConfirmClaim(context.Background(), *fast.ClaimToken); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if _, err := f.resolver.ConfirmClaim(context.Background(), *slow.ClaimToken); !errors.Is(err, ErrClaimExpired) {
		t.Errorf("second claim err = %v, want ErrClaimExpired", err)
	}

	if len(f.repo.btx.inserted) != 1 {
		t.Fatalf("inserted %d appointments, want exactly 1", len(f.repo.btx.inserted))
	}
	if slow.Status != StatusPending {
		t.Errorf("loser status = %s, the entry must stay on the waitlist", slow.Status)
	}
	wantKey := "doctor:" + doctorID.String()
	if len(f.locker.keys) != 2 || f.locker.keys[0] != wantKey || f.locker.keys[1] != wantKey {
		t.Errorf("lock keys = %v, both claims must serialize on %s", f.locker.keys, wantKey)
	}
}

func TestConfirmClaimSupersededToken(t *testing.T) {
	f := newResolverFixture()
	entry := pendingEntry(1, "patient@example.com")
	f.repo.entries = []*Entry{entry}

	if err := f.resolver.OfferFreedSlot(context.Background(), freedSlot(uuid.New())); err != nil {
		t.Fatalf("first offer: %v", err)
	}
	stale := *entry.ClaimToken

	// A second cancellation re-offers; the stamped token replaces the old one.
	if err := f.resolver.OfferFreedSlot(context.Background(), freedSlot(uuid.New())); err != nil {
		t.Fatalf("second offer: %v", err)
	}

	if _, err := f.resolver.ConfirmClaim(context.Background(), stale); !errors.Is(err, ErrClaimExpired) {
		t.Errorf("stale token err = %v, want ErrClaimExpired", err)
	}
	if _, err := f.resolver.ConfirmClaim(context.Background(), *entry.ClaimToken); err != nil {
		t.Errorf("current token should still claim: %v", err)
	}
}

func TestConfirmClaimWhenDoctorLockBusy(t *testing.T) {
	f := newResolverFixture()
	entry := pendingEntry(1, "patient@example.com")
	f.repo.entries = []*Entry{entry}

	if err := f.resolver.OfferFreedSlot(context.Background(), freedSlot(uuid.New())); err != nil {
		t.Fatalf("OfferFreedSlot: %v", err)
	}
	f.locker.busy = true

	if _, err := f.resolver.ConfirmClaim(context.Background(), *entry.ClaimToken); !errors.Is(err, ErrClaimBusy) {
		t.Errorf("err = %v, want ErrClaimBusy", err)
	}
	if entry.Status != StatusPending {
		t.Errorf("entry status = %s, a busy lock must not consume the entry", entry.Status)
	}
	if len(f.repo.btx.inserted) != 0 {
		t.Error("no appointment should be created when the lock is busy")
	}
}

func TestCreateEntryValidates(t *testing.T) {
	f := newResolverFixture()

	bad := &Entry{PatientID: uuid.Nil, WindowStart: at(8, 0), WindowEnd: at(18, 0)}
	if _, err := f.resolver.CreateEntry(context.Background(), bad); err == nil {
		t.Error("expected validation error for missing patient")
	}

	good := &Entry{PatientID: uuid.New(), WindowStart: at(8, 0), WindowEnd: at(18, 0)}
	created, err := f.resolver.CreateEntry(context.Background(), good)
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}
	if created.Status != StatusPending {
		t.Errorf("status = %s, want pending", created.Status)
	}
}
