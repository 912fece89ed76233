package usecase

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/slapcommerce/backoffice/internal/domain/aggregate"
	"github.com/slapcommerce/backoffice/internal/domain/repository"
	"github.com/slapcommerce/backoffice/internal/infra/persistence"
)

// slugRegistryID is the fixed identity of the singleton slug registry
// aggregate. Deterministic so every process agrees without coordination.
var slugRegistryID = uuid.NewSHA1(uuid.NameSpaceURL, []byte("backoffice/slug-registry"))

// positionsID derives the per-collection positions aggregate identity
// from the collection id.
func positionsID(collectionID uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("backoffice/product-positions/"+collectionID.String()))
}

// Service implements every command handler. Mutations follow one shape:
// load the snapshot, verify the optimistic version, mutate the
// aggregate, and register events, snapshot, outbox entries and
// read-model rows with one unit of work.
type Service struct {
	uow      *persistence.UnitOfWork
	log      *logrus.Logger
	policies map[string]aggregate.ValidationPolicy
}

func NewService(uow *persistence.UnitOfWork, log *logrus.Logger) *Service {
	return &Service{
		uow:      uow,
		log:      log,
		policies: make(map[string]aggregate.ValidationPolicy),
	}
}

// RegisterPolicy binds a product kind to its validation policy. Kinds
// without a policy get no extra validation.
func (s *Service) RegisterPolicy(kind string, p aggregate.ValidationPolicy) {
	s.policies[kind] = p
}

func (s *Service) policyFor(kind string) aggregate.ValidationPolicy {
	return s.policies[kind]
}

// Dispatcher returns a dispatcher with every command type registered.
func (s *Service) Dispatcher() *Dispatcher {
	d := NewDispatcher(s.log)

	d.Register("createCollection", s.CreateCollection)
	d.Register("renameCollection", s.RenameCollection)
	d.Register("publishCollection", s.PublishCollection)
	d.Register("unpublishCollection", s.UnpublishCollection)
	d.Register("archiveCollection", s.ArchiveCollection)

	d.Register("createProduct", s.CreateProduct)
	d.Register("updateProductDetails", s.UpdateProductDetails)
	d.Register("publishProduct", s.PublishProduct)
	d.Register("unpublishProduct", s.UnpublishProduct)
	d.Register("archiveProduct", s.ArchiveProduct)
	d.Register("assignProductToCollection", s.AssignProductToCollection)
	d.Register("removeProductFromCollection", s.RemoveProductFromCollection)
	d.Register("setProductPosition", s.SetProductPosition)
	d.Register("removeProductPosition", s.RemoveProductPosition)

	d.Register("createVariant", s.CreateVariant)
	d.Register("updateVariantPrice", s.UpdateVariantPrice)
	d.Register("publishVariant", s.PublishVariant)
	d.Register("archiveVariant", s.ArchiveVariant)
	d.Register("scheduleVariantDrop", s.ScheduleVariantDrop)
	d.Register("executeVariantDrop", s.ExecuteVariantDrop)
	d.Register("cancelVariantDrop", s.CancelVariantDrop)
	d.Register("scheduleVariantSale", s.ScheduleVariantSale)
	d.Register("startVariantSale", s.StartVariantSale)
	d.Register("endVariantSale", s.EndVariantSale)
	d.Register("cancelVariantSale", s.CancelVariantSale)

	d.Register("createSchedule", s.CreateSchedule)
	d.Register("cancelSchedule", s.CancelSchedule)

	return d
}

// targetRef is the common "which aggregate, at which version" prefix of
// every mutation payload. ExpectedVersion nil skips the client-side
// optimistic check; the snapshot version guard still applies at commit.
type targetRef struct {
	ID              string `json:"id"`
	ExpectedVersion *int64 `json:"expectedVersion,omitempty"`
}

func verifyVersion(snap aggregate.Snapshot, expected *int64) error {
	if expected != nil && *expected != snap.Version {
		return repository.ErrVersionConflict
	}
	return nil
}
