package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"tradeledger/backend/internal/cache"
	"tradeledger/backend/internal/domain"
	"tradeledger/backend/internal/ledger"
	"tradeledger/backend/internal/store"
)

const defaultLowStockThreshold = 5

type Options struct {
	LowStockThreshold int
	SummaryTTL        time.Duration
	Now               func() time.Time
}

type Service struct {
	repo      store.Repository
	engine    *ledger.Engine
	summaries cache.SummaryCache
	validate  *validator.Validate
	logger    logrus.FieldLogger

	lowStockThreshold int
	summaryTTL        time.Duration
	now               func() time.Time
}

func New(repo store.Repository, engine *ledger.Engine, summaries cache.SummaryCache, logger logrus.FieldLogger, opts Options) *Service {
	if summaries == nil {
		summaries = cache.NoopSummaryCache{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if opts.LowStockThreshold <= 0 {
		opts.LowStockThreshold = defaultLowStockThreshold
	}
	if opts.SummaryTTL <= 0 {
		opts.SummaryTTL = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		repo:              repo,
		engine:            engine,
		summaries:         summaries,
		validate:          validator.New(),
		logger:            logger.WithField("module", "service"),
		lowStockThreshold: opts.LowStockThreshold,
		summaryTTL:        opts.SummaryTTL,
		now:               opts.Now,
	}
}

// check runs struct validation and reports failures as ErrInvalidTransaction.
func (s *Service) check(req any) error {
	if err := s.validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return fmt.Errorf("%w: %s failed on %s", store.ErrInvalidTransaction, fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", store.ErrInvalidTransaction, err)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", store.ErrInvalidTransaction, fmt.Sprintf(format, args...))
}

// invalidateSummaries drops cached read models after any write. A cache
// failure is logged and never fails the write that already committed.
func (s *Service) invalidateSummaries(ctx context.Context) {
	if err := s.summaries.Invalidate(ctx, cache.DashboardKey, cache.CapitalSummaryKey); err != nil {
		s.logger.WithField("func", "invalidateSummaries").Warn("failed to invalidate summaries: " + err.Error())
	}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.engine.Product(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

// CreateProduct always starts the product at zero stock.
func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	req.Description = strings.TrimSpace(req.Description)
	if err := s.check(req); err != nil {
		return domain.Product{}, err
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
	})
	if err != nil {
		return domain.Product{}, err
	}
	s.invalidateSummaries(ctx)
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if err := s.check(req); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, invalid("name must not be blank")
		}
		updated.Name = name
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}
	if req.Category != nil {
		updated.Category = strings.TrimSpace(*req.Category)
	}

	result, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}
	s.invalidateSummaries(ctx)
	return *result, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if err := s.repo.DeleteProduct(ctx, strings.TrimSpace(id)); err != nil {
		return err
	}
	s.invalidateSummaries(ctx)
	return nil
}

func (s *Service) ProductStockMovements(ctx context.Context, id string) ([]domain.StockMovement, error) {
	id = strings.TrimSpace(id)
	if _, err := s.repo.GetProduct(ctx, id); err != nil {
		return nil, err
	}
	return s.engine.StockMovements(ctx, id)
}

// StockMovements lists every movement, or only one product's when productID is set.
func (s *Service) StockMovements(ctx context.Context, productID string) ([]domain.StockMovement, error) {
	return s.engine.StockMovements(ctx, strings.TrimSpace(productID))
}

func (s *Service) ListContacts(ctx context.Context) ([]domain.Contact, error) {
	return s.repo.ListContacts(ctx)
}

func (s *Service) GetContact(ctx context.Context, id string) (domain.Contact, error) {
	contact, err := s.repo.GetContact(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Contact{}, err
	}
	return *contact, nil
}

func (s *Service) CreateContact(ctx context.Context, req domain.ContactCreateRequest) (domain.Contact, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	req.Email = strings.TrimSpace(req.Email)
	req.Address = strings.TrimSpace(req.Address)
	if err := s.check(req); err != nil {
		return domain.Contact{}, err
	}

	created, err := s.repo.CreateContact(ctx, domain.Contact{
		Name:    req.Name,
		Phone:   req.Phone,
		Email:   req.Email,
		Address: req.Address,
	})
	if err != nil {
		return domain.Contact{}, err
	}
	s.invalidateSummaries(ctx)
	return *created, nil
}

func (s *Service) UpdateContact(ctx context.Context, id string, req domain.ContactUpdateRequest) (domain.Contact, error) {
	if err := s.check(req); err != nil {
		return domain.Contact{}, err
	}

	existing, err := s.repo.GetContact(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Contact{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Contact{}, invalid("name must not be blank")
		}
		updated.Name = name
	}
	if req.Phone != nil {
		phone := strings.TrimSpace(*req.Phone)
		if phone == "" {
			return domain.Contact{}, invalid("phone must not be blank")
		}
		updated.Phone = phone
	}
	if req.Email != nil {
		updated.Email = strings.TrimSpace(*req.Email)
	}
	if req.Address != nil {
		updated.Address = strings.TrimSpace(*req.Address)
	}

	result, err := s.repo.UpdateContact(ctx, updated)
	if err != nil {
		return domain.Contact{}, err
	}
	s.invalidateSummaries(ctx)
	return *result, nil
}

func (s *Service) DeleteContact(ctx context.Context, id string) error {
	if err := s.repo.DeleteContact(ctx, strings.TrimSpace(id)); err != nil {
		return err
	}
	s.invalidateSummaries(ctx)
	return nil
}
