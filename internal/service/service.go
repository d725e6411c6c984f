// Package service реализует бизнес-логику сервиса kycgate.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/kycgate/internal/kycprovider"
	"github.com/mmeshcher/kycgate/internal/metrics"
	"github.com/mmeshcher/kycgate/internal/model"
	"github.com/mmeshcher/kycgate/internal/repository"
	"github.com/mmeshcher/kycgate/internal/tier"
	"github.com/mmeshcher/kycgate/internal/validation"
)

var (
	// ErrInvalidCredentials возвращается при неверном логине или пароле.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidEmail возвращается при некорректном адресе электронной почты.
	ErrInvalidEmail = errors.New("invalid email")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, login string, passwordHash []byte) (int64, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	RecordAuthEvent(ctx context.Context, ev model.AuthEvent) error
	TouchLastLogin(ctx context.Context, userID int64, at time.Time) error
	GetUserTierState(ctx context.Context, userID int64) (*model.UserTierState, error)
	UpgradeTier(ctx context.Context, userID int64, target model.Tier, reason string, at time.Time) (model.Tier, error)
	MonthlyVolume(ctx context.Context, userID int64, w model.VolumeWindow) (int64, error)
	CreateTransaction(ctx context.Context, userID int64, typ model.TransactionType, amountCents int64, w model.VolumeWindow, capCents *int64, at time.Time) (int64, error)
	GetTransactionsByUser(ctx context.Context, userID int64) ([]model.Transaction, error)
	AddWaitlistEntry(ctx context.Context, e model.WaitlistEntry) (bool, error)
	CreateInquiry(ctx context.Context, inq model.KYCInquiry) (bool, error)
	GetInquiry(ctx context.Context, inquiryID string) (*model.KYCInquiry, error)
	GetPendingInquiries(ctx context.Context, limit int) ([]model.KYCInquiry, error)
	UpdateInquiryStatus(ctx context.Context, inquiryID string, status model.InquiryStatus, granted *model.Tier, at time.Time) error
}

// Options задаёт параметры поведения сервиса.
type Options struct {
	// StoreTimeout ограничивает время одного обращения к хранилищу.
	StoreTimeout time.Duration
	// VolumeFailClosed запрещает операции с месячным лимитом, если объём не удалось вычислить.
	VolumeFailClosed bool
	// TemplateTiers задаёт уровень, присваиваемый за одобренную проверку по шаблону провайдера.
	TemplateTiers map[string]model.Tier
}

// Service содержит бизнес-логику сервиса kycgate.
type Service struct {
	repo      Repository
	catalog   *tier.Catalog
	kycClient *kycprovider.Client
	logger    *zap.Logger
	opts      Options
	now       func() time.Time
}

// NewService создаёт новый сервис с указанным репозиторием и клиентом KYC-провайдера.
func NewService(repo Repository, kycClient *kycprovider.Client, logger *zap.Logger, opts Options) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 3 * time.Second
	}
	return &Service{
		repo:      repo,
		catalog:   tier.NewCatalog(logger),
		kycClient: kycClient,
		logger:    logger,
		opts:      opts,
		now:       time.Now,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opts.StoreTimeout)
}

// RegisterUser регистрирует нового пользователя.
func (s *Service) RegisterUser(ctx context.Context, login, password string, meta model.AuthMeta) (int64, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}

	id, err := s.repo.CreateUser(ctx, login, hashed)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return 0, repository.ErrUserExists
		}
		return 0, err
	}

	s.recordAuthEvent(ctx, &id, login, model.AuthEventRegister, true, meta)
	return id, nil
}

// AuthenticateUser проверяет логин и пароль пользователя и возвращает его идентификатор.
// Каждая попытка записывается в журнал аутентификации.
func (s *Service) AuthenticateUser(ctx context.Context, login, password string, meta model.AuthMeta) (int64, error) {
	u, err := s.repo.GetUserByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.recordAuthEvent(ctx, nil, login, model.AuthEventLogin, false, meta)
			return 0, ErrInvalidCredentials
		}
		return 0, err
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		s.recordAuthEvent(ctx, &u.ID, login, model.AuthEventLogin, false, meta)
		return 0, ErrInvalidCredentials
	}

	s.recordAuthEvent(ctx, &u.ID, login, model.AuthEventLogin, true, meta)
	if err := s.repo.TouchLastLogin(ctx, u.ID, s.now()); err != nil {
		s.logger.Error("update last login error", zap.Error(err), zap.Int64("userID", u.ID))
	}

	return u.ID, nil
}

func (s *Service) recordAuthEvent(ctx context.Context, userID *int64, login, event string, success bool, meta model.AuthMeta) {
	err := s.repo.RecordAuthEvent(ctx, model.AuthEvent{
		UserID:    userID,
		Login:     login,
		Event:     event,
		Success:   success,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		CreatedAt: s.now(),
	})
	if err != nil {
		s.logger.Error("record auth event error", zap.Error(err), zap.String("event", event), zap.String("login", login))
	}
}

// JoinWaitlist добавляет адрес в лист ожидания. Возвращает true, если запись
// создана, и false, если адрес уже был в списке.
func (s *Service) JoinWaitlist(ctx context.Context, signup model.WaitlistSignup) (bool, error) {
	email := validation.NormalizeEmail(signup.Email)
	if !validation.IsValidEmail(email) {
		metrics.WaitlistSignups.WithLabelValues("invalid").Inc()
		return false, fmt.Errorf("%w: %q", ErrInvalidEmail, signup.Email)
	}

	created, err := s.repo.AddWaitlistEntry(ctx, model.WaitlistEntry{
		ID:             uuid.New(),
		Email:          email,
		Name:           signup.Name,
		ReferralSource: signup.ReferralSource,
		CreatedAt:      s.now(),
	})
	if err != nil {
		metrics.WaitlistSignups.WithLabelValues("error").Inc()
		return false, err
	}

	if created {
		metrics.WaitlistSignups.WithLabelValues("created").Inc()
		s.logger.Info("waitlist signup", zap.String("email", email), zap.String("source", signup.ReferralSource))
	} else {
		metrics.WaitlistSignups.WithLabelValues("duplicate").Inc()
	}

	return created, nil
}

func toCents(v float64) int64 {
	return int64(math.Round(v * 100))
}

func fromCents(v int64) float64 {
	return float64(v) / 100
}
