package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/mmeshcher/kycgate/internal/kycprovider"
	"github.com/mmeshcher/kycgate/internal/model"
	"github.com/mmeshcher/kycgate/internal/repository"
)

var testTemplateTiers = map[string]model.Tier{
	"itmpl_basic":    model.Tier1,
	"itmpl_verified": model.Tier2,
}

func newInquiryService(t *testing.T, repo *stubRepo) *Service {
	t.Helper()
	return newTestService(t, repo, Options{TemplateTiers: testTemplateTiers})
}

func pendingInquiry(repo *stubRepo, id string, userID int64) {
	repo.inquiries[id] = &model.KYCInquiry{InquiryID: id, UserID: userID, Status: model.InquiryPending}
}

func TestRegisterInquiry(t *testing.T) {
	ctx := context.Background()
	repo := newStubRepo()
	svc := newInquiryService(t, repo)

	_, err := svc.RegisterInquiry(ctx, 1, "inq 1")
	assert.ErrorIs(t, err, ErrInvalidInquiry)

	exists, err := svc.RegisterInquiry(ctx, 1, "inq_1")
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = svc.RegisterInquiry(ctx, 1, "inq_1")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = svc.RegisterInquiry(ctx, 2, "inq_1")
	assert.ErrorIs(t, err, repository.ErrInquiryOwnedByAnother)
}

func TestApplyInquiryStatus(t *testing.T) {
	tests := []struct {
		name        string
		current     model.Tier
		result      model.ProviderInquiry
		upgradeErr  error
		wantStatus  model.InquiryStatus
		wantTier    model.Tier
		wantGranted *model.Tier
		wantErr     bool
	}{
		{
			name:        "approved upgrades to template tier",
			current:     model.Tier0,
			result:      model.ProviderInquiry{Status: "approved", TemplateID: "itmpl_verified"},
			wantStatus:  model.InquiryCompleted,
			wantTier:    model.Tier2,
			wantGranted: tierOf(model.Tier2),
		},
		{
			name:       "approved with unmapped template grants nothing",
			current:    model.Tier0,
			result:     model.ProviderInquiry{Status: "approved", TemplateID: "itmpl_premium"},
			wantStatus: model.InquiryFailed,
			wantTier:   model.Tier0,
		},
		{
			name:       "approved without template grants nothing",
			current:    model.Tier0,
			result:     model.ProviderInquiry{Status: "approved"},
			wantStatus: model.InquiryFailed,
			wantTier:   model.Tier0,
		},
		{
			name:       "declined marks failed",
			current:    model.Tier0,
			result:     model.ProviderInquiry{Status: "declined", TemplateID: "itmpl_verified"},
			wantStatus: model.InquiryFailed,
			wantTier:   model.Tier0,
		},
		{
			name:       "still in review",
			current:    model.Tier0,
			result:     model.ProviderInquiry{Status: "needs_review", TemplateID: "itmpl_verified"},
			wantStatus: model.InquiryPending,
			wantTier:   model.Tier0,
		},
		{
			name:       "user already above template tier",
			current:    model.Tier3,
			result:     model.ProviderInquiry{Status: "completed", TemplateID: "itmpl_verified"},
			wantStatus: model.InquiryCompleted,
			wantTier:   model.Tier3,
		},
		{
			name:       "storage failure keeps inquiry pending",
			current:    model.Tier0,
			result:     model.ProviderInquiry{Status: "approved", TemplateID: "itmpl_verified"},
			upgradeErr: errStore,
			wantStatus: model.InquiryPending,
			wantTier:   model.Tier0,
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newStubRepo()
			repo.tiers[1] = tt.current
			repo.upgradeErr = tt.upgradeErr
			pendingInquiry(repo, "inq_1", 1)
			svc := newInquiryService(t, repo)

			status, err := svc.ApplyInquiryStatus(context.Background(), "inq_1", tt.result)
			if tt.wantErr {
				assert.ErrorIs(t, err, model.ErrStorageFailure)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantStatus, repo.inquiries["inq_1"].Status)
			assert.Equal(t, tt.wantGranted, repo.inquiries["inq_1"].GrantedTier)
			assert.Equal(t, tt.wantTier, repo.tiers[1])
		})
	}
}

func TestApplyInquiryStatus_TierComesFromProvider(t *testing.T) {
	ctx := context.Background()
	repo := newStubRepo()
	svc := newInquiryService(t, repo)

	_, err := svc.RegisterInquiry(ctx, 7, "inq_abc123")
	require.NoError(t, err)

	_, err = svc.ApplyInquiryStatus(ctx, "inq_abc123", model.ProviderInquiry{Status: "approved", TemplateID: "itmpl_basic"})
	require.NoError(t, err)

	assert.Equal(t, model.Tier1, svc.GetUserTier(ctx, 7))
	d := svc.CanPerform(ctx, 7, model.ActionLoan, amountOf(1e6))
	assert.False(t, d.Allowed)
}

func TestApplyInquiryStatus_DefaultReasonAndIdempotency(t *testing.T) {
	ctx := context.Background()
	repo := newStubRepo()
	pendingInquiry(repo, "inq_1", 1)
	svc := newInquiryService(t, repo)

	status, err := svc.ApplyInquiryStatus(ctx, "inq_1", model.ProviderInquiry{Status: "approved", TemplateID: "itmpl_basic"})
	require.NoError(t, err)
	assert.Equal(t, model.InquiryCompleted, status)
	assert.Equal(t, model.DefaultUpgradeReason, repo.reasons[1])

	status, err = svc.ApplyInquiryStatus(ctx, "inq_1", model.ProviderInquiry{Status: "approved", TemplateID: "itmpl_verified"})
	require.NoError(t, err)
	assert.Equal(t, model.InquiryCompleted, status)
	assert.Equal(t, model.Tier1, repo.tiers[1])

	_, err = svc.ApplyInquiryStatus(ctx, "missing", model.ProviderInquiry{Status: "approved"})
	assert.ErrorIs(t, err, repository.ErrInquiryNotFound)
}

func TestStartInquirySync_NoClient(t *testing.T) {
	defer goleak.VerifyNone(t)

	svc := newInquiryService(t, newStubRepo())

	done := make(chan struct{})
	go func() {
		svc.StartInquirySync(context.Background(), time.Millisecond)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("StartInquirySync must return immediately without a provider client")
	}
}

func TestStartInquirySync_AppliesProviderStatus(t *testing.T) {
	defer goleak.VerifyNone(t,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"id":"inq_1","attributes":{"status":"approved"},` +
			`"relationships":{"inquiry-template":{"data":{"id":"itmpl_verified"}}}}}`))
	}))
	defer ts.Close()

	repo := newStubRepo()
	pendingInquiry(repo, "inq_1", 1)
	svc := NewService(repo, kycprovider.NewClient(ts.URL, "key"), zaptest.NewLogger(t), Options{TemplateTiers: testTemplateTiers})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.StartInquirySync(ctx, 10*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		inq, err := repo.GetInquiry(context.Background(), "inq_1")
		return err == nil && inq.Status == model.InquiryCompleted
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done

	assert.Equal(t, model.Tier2, svc.GetUserTier(context.Background(), 1))
}
