package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sio2000/gymUI-sub000/internal/checkin/service"
	"github.com/sio2000/gymUI-sub000/internal/checkin/store"
	"github.com/sio2000/gymUI-sub000/internal/checkin/store/memory"
	"github.com/sio2000/gymUI-sub000/internal/checkin/token"
	"github.com/sio2000/gymUI-sub000/internal/checkin/types"
)

var now = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

func timePtr(t time.Time) *time.Time { return &t }

func newValidator(cs store.CredentialStore, dir store.SubjectDirectory) *service.AdmissionValidator {
	return service.NewAdmissionValidator(cs, dir, service.ValidatorConfig{LookupTimeout: 200 * time.Millisecond}, zap.NewNop())
}

// failingStore returns err from every call.  With block set it instead
// waits for the context to end.
type failingStore struct {
	err   error
	block bool
}

func (f failingStore) wait(ctx context.Context) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.err
}

func (f failingStore) FindActiveByToken(ctx context.Context, _ string) (*store.IssuedCredential, error) {
	return nil, f.wait(ctx)
}

func (f failingStore) FindActiveByFields(ctx context.Context, _, _ string) (*store.IssuedCredential, error) {
	return nil, f.wait(ctx)
}

func (f failingStore) ClaimIfUnclaimed(ctx context.Context, _, _ string, _ time.Time) (bool, error) {
	return false, f.wait(ctx)
}

func (f failingStore) GetByID(ctx context.Context, _ string) (*store.IssuedCredential, error) {
	return nil, f.wait(ctx)
}

type failingDirectory struct{}

func (failingDirectory) DisplayName(context.Context, string) (string, error) {
	return "", errors.New("directory unavailable")
}

func TestValidate_OpaqueGrant(t *testing.T) {
	cs := memory.NewCredentialStore(store.IssuedCredential{
		ID: "c1", Token: "A1B2C3", SubjectID: "u-42", Category: "free_gym",
	})
	dir := memory.NewSubjectDirectory(map[string]string{"u-42": "Maria P."})

	d := newValidator(cs, dir).Validate(context.Background(), token.Classify("A1B2C3"), now, "")

	assert.Equal(t, types.OutcomeGrant, d.Outcome)
	assert.Equal(t, types.ReasonNone, d.Reason)
	assert.Equal(t, "u-42", d.SubjectID)
	assert.Equal(t, "free_gym", d.Category)
	assert.Equal(t, "Maria P.", d.DisplayName)
	assert.Equal(t, "c1", d.CredentialID)
}

func TestValidate_ExpiryBoundaries(t *testing.T) {
	expires := now.Add(time.Hour)
	cs := memory.NewCredentialStore(store.IssuedCredential{
		ID: "c1", Token: "MONTHLY01", SubjectID: "u-1", Category: "pilates", ExpiresAt: &expires,
	})
	v := newValidator(cs, nil)
	parsed := token.Classify("MONTHLY01")

	assert.Equal(t, types.OutcomeGrant, v.Validate(context.Background(), parsed, now, "").Outcome)

	late := v.Validate(context.Background(), parsed, expires.Add(time.Hour), "")
	assert.Equal(t, types.OutcomeDeny, late.Outcome)
	assert.Equal(t, types.ReasonExpired, late.Reason)
	assert.Equal(t, "u-1", late.SubjectID)

	atExpiry := v.Validate(context.Background(), parsed, expires, "")
	assert.Equal(t, types.ReasonExpired, atExpiry.Reason, "expiresAt must be strictly after now")
}

func TestValidate_NotFound(t *testing.T) {
	v := newValidator(memory.NewCredentialStore(), nil)

	d := v.Validate(context.Background(), token.Classify("ZZZZZZZZ"), now, "")
	assert.Equal(t, types.OutcomeDeny, d.Outcome)
	assert.Equal(t, types.ReasonNotFound, d.Reason)
}

func TestValidate_CompositeNotFound(t *testing.T) {
	v := newValidator(memory.NewCredentialStore(), nil)

	parsed := token.Classify("u-42__pilates__1700000000000")
	require.Equal(t, token.LookupByFields, parsed.Mode)

	d := v.Validate(context.Background(), parsed, now, "")
	assert.Equal(t, types.OutcomeDeny, d.Outcome)
	assert.Equal(t, types.ReasonNotFound, d.Reason)
}

func TestValidate_CompositeFieldsMatchCaseInsensitively(t *testing.T) {
	cs := memory.NewCredentialStore(store.IssuedCredential{
		ID: "c1", Token: "opaque-not-used", SubjectID: "u-42", Category: "Pilates",
	})

	d := newValidator(cs, nil).Validate(context.Background(), token.Classify("u-42__PILATES__1700000000000"), now, "")
	assert.Equal(t, types.OutcomeGrant, d.Outcome)
	assert.Equal(t, "Pilates", d.Category)
	assert.Equal(t, service.UnknownDisplayName, d.DisplayName)
}

func TestValidate_CompositeByRawToken(t *testing.T) {
	raw := "u-42__pilates__1700000000000"
	cs := memory.NewCredentialStore(store.IssuedCredential{
		ID: "c1", Token: raw, SubjectID: "u-42", Category: "pilates",
	})
	parsed := token.NewInterpreter(token.LegacyByRaw).Classify(raw)

	d := newValidator(cs, nil).Validate(context.Background(), parsed, now, "")
	assert.Equal(t, types.OutcomeGrant, d.Outcome)
}

func TestValidate_URLNotFoundIsSoftGrant(t *testing.T) {
	v := newValidator(memory.NewCredentialStore(), nil)

	d := v.Validate(context.Background(), token.Classify("https://example.com/menu"), now, "")
	assert.Equal(t, types.OutcomeGrant, d.Outcome)
	assert.Equal(t, types.ReasonExternalUnrecognized, d.Reason)
	assert.Equal(t, types.ExternalCategory, d.Category)
	assert.Empty(t, d.SubjectID)
}

func TestValidate_URLFoundIsValidatedNormally(t *testing.T) {
	raw := "https://gym.example.com/qr/abc"
	expired := now.Add(-time.Minute)
	cs := memory.NewCredentialStore(store.IssuedCredential{
		ID: "c1", Token: raw, SubjectID: "u-7", Category: "free_gym", ExpiresAt: &expired,
	})

	d := newValidator(cs, nil).Validate(context.Background(), token.Classify(raw), now, "")
	assert.Equal(t, types.OutcomeDeny, d.Outcome)
	assert.Equal(t, types.ReasonExpired, d.Reason)
}

func TestValidate_Unparseable(t *testing.T) {
	v := newValidator(failingStore{err: errors.New("must not be called")}, nil)

	d := v.Validate(context.Background(), token.Classify("??"), now, "")
	assert.Equal(t, types.OutcomeDeny, d.Outcome)
	assert.Equal(t, types.ReasonUnparseable, d.Reason)
}

func TestValidate_StoreErrorBecomesLookupFailed(t *testing.T) {
	v := newValidator(failingStore{err: errors.New("pq: connection refused at 10.0.0.4")}, nil)

	for _, raw := range []string{"A1B2C3", "u-42__pilates__1", "https://example.com"} {
		d := v.Validate(context.Background(), token.Classify(raw), now, "")
		assert.Equalf(t, types.OutcomeDeny, d.Outcome, "raw=%q", raw)
		assert.Equalf(t, types.ReasonLookupFailed, d.Reason, "raw=%q", raw)
		assert.Emptyf(t, d.SubjectID, "raw=%q", raw)
	}
}

func TestValidate_TimeoutBecomesLookupFailed(t *testing.T) {
	v := newValidator(failingStore{block: true}, nil)

	start := time.Now()
	d := v.Validate(context.Background(), token.Classify("A1B2C3"), now, "")
	assert.Equal(t, types.ReasonLookupFailed, d.Reason)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestValidate_InactiveCredentialFromStoreIsDenied(t *testing.T) {
	v := newValidator(staleStore{}, nil)

	d := v.Validate(context.Background(), token.Classify("A1B2C3"), now, "")
	assert.Equal(t, types.OutcomeDeny, d.Outcome)
	assert.Equal(t, types.ReasonInactive, d.Reason)
}

// staleStore returns a revoked credential from an "active" query, as a
// replica lagging behind a revocation might.
type staleStore struct{ failingStore }

func (staleStore) FindActiveByToken(context.Context, string) (*store.IssuedCredential, error) {
	return &store.IssuedCredential{ID: "c1", Token: "A1B2C3", SubjectID: "u-1", Status: store.StatusInactive}, nil
}

func TestValidate_DirectoryFailureKeepsGrant(t *testing.T) {
	cs := memory.NewCredentialStore(store.IssuedCredential{
		ID: "c1", Token: "A1B2C3", SubjectID: "u-42", Category: "free_gym",
	})

	d := newValidator(cs, failingDirectory{}).Validate(context.Background(), token.Classify("A1B2C3"), now, "")
	assert.Equal(t, types.OutcomeGrant, d.Outcome)
	assert.Equal(t, service.UnknownDisplayName, d.DisplayName)
}

func TestValidate_ClaimOnFirstUse(t *testing.T) {
	cs := memory.NewCredentialStore(store.IssuedCredential{
		ID: "c1", Token: "PREISSUED9", SubjectID: "u-9", Category: "personal", Claimable: true,
	})
	v := newValidator(cs, nil)
	parsed := token.Classify("PREISSUED9")

	first := v.Validate(context.Background(), parsed, now, "u-9")
	assert.Equal(t, types.OutcomeGrant, first.Outcome)
	assert.True(t, first.Claimed)

	c, err := cs.GetByID(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "u-9", c.ClaimedBy)
	require.NotNil(t, c.ClaimedAt)
	assert.True(t, c.ClaimedAt.Equal(now))

	// Same subject again: no-op, same outcome.
	second := v.Validate(context.Background(), parsed, now, "u-9")
	assert.Equal(t, first.Outcome, second.Outcome)
	assert.Equal(t, first.Reason, second.Reason)
	assert.False(t, second.Claimed)

	// A different subject does not invalidate the grant.
	other := v.Validate(context.Background(), parsed, now, "u-10")
	assert.Equal(t, types.OutcomeGrant, other.Outcome)
	c, err = cs.GetByID(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "u-9", c.ClaimedBy)
}

func TestValidate_NoClaimWithoutClaimantOrForRegularCredentials(t *testing.T) {
	cs := memory.NewCredentialStore(
		store.IssuedCredential{ID: "pre", Token: "PREISSUED1", SubjectID: "u-1", Claimable: true},
		store.IssuedCredential{ID: "reg", Token: "REGULAR001", SubjectID: "u-2"},
	)
	v := newValidator(cs, nil)

	d := v.Validate(context.Background(), token.Classify("PREISSUED1"), now, "")
	assert.False(t, d.Claimed)
	d = v.Validate(context.Background(), token.Classify("REGULAR001"), now, "u-2")
	assert.False(t, d.Claimed)

	for _, id := range []string{"pre", "reg"} {
		c, err := cs.GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.Empty(t, c.ClaimedBy)
	}
}

func TestValidate_ExpiredCredentialIsNotClaimed(t *testing.T) {
	expired := now.Add(-time.Hour)
	cs := memory.NewCredentialStore(store.IssuedCredential{
		ID: "c1", Token: "PREISSUED2", SubjectID: "u-1", Claimable: true, ExpiresAt: &expired,
	})

	d := newValidator(cs, nil).Validate(context.Background(), token.Classify("PREISSUED2"), now, "u-1")
	assert.Equal(t, types.ReasonExpired, d.Reason)

	c, err := cs.GetByID(context.Background(), "c1")
	require.NoError(t, err)
	assert.Empty(t, c.ClaimedBy)
}

func TestValidate_ConcurrentClaimsBothGrant(t *testing.T) {
	cs := memory.NewCredentialStore(store.IssuedCredential{
		ID: "c1", Token: "PREISSUED3", SubjectID: "u-1", Category: "free_gym", Claimable: true,
	})
	v := newValidator(cs, nil)
	parsed := token.Classify("PREISSUED3")

	var wg sync.WaitGroup
	decisions := make([]types.Decision, 2)
	for i, claimant := range []string{"u-1", "u-2"} {
		wg.Add(1)
		go func(i int, claimant string) {
			defer wg.Done()
			decisions[i] = v.Validate(context.Background(), parsed, now, claimant)
		}(i, claimant)
	}
	wg.Wait()

	claimed := 0
	for _, d := range decisions {
		assert.Equal(t, types.OutcomeGrant, d.Outcome)
		if d.Claimed {
			claimed++
		}
	}
	assert.LessOrEqual(t, claimed, 1)

	c, err := cs.GetByID(context.Background(), "c1")
	require.NoError(t, err)
	assert.Contains(t, []string{"u-1", "u-2"}, c.ClaimedBy)
}

func TestValidate_ClaimFailureKeepsGrant(t *testing.T) {
	v := newValidator(claimFailStore{}, nil)

	d := v.Validate(context.Background(), token.Classify("PREISSUED4"), now, "u-1")
	assert.Equal(t, types.OutcomeGrant, d.Outcome)
	assert.False(t, d.Claimed)
}

type claimFailStore struct{ failingStore }

func (claimFailStore) FindActiveByToken(context.Context, string) (*store.IssuedCredential, error) {
	return &store.IssuedCredential{
		ID: "c1", Token: "PREISSUED4", SubjectID: "u-1", Status: store.StatusActive, Claimable: true,
		ExpiresAt: timePtr(now.Add(time.Hour)),
	}, nil
}

func (claimFailStore) ClaimIfUnclaimed(context.Context, string, string, time.Time) (bool, error) {
	return false, errors.New("write conflict")
}
