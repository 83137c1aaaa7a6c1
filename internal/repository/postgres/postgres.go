package postgres

import (
	"github.com/jmoiron/sqlx"

	"github.com/mealbridge/dispatch-api/internal/repository"
)

type deliveryRepository struct {
	BaseRepository
}

type partyRepository struct {
	BaseRepository
}

type containerRepository struct {
	BaseRepository
}

func NewDeliveryRepository(db *sqlx.DB) repository.DeliveryRepository {
	return &deliveryRepository{NewBaseRepository(db)}
}

func NewPartyRepository(db *sqlx.DB) repository.PartyRepository {
	return &partyRepository{NewBaseRepository(db)}
}

func NewContainerRepository(db *sqlx.DB) repository.ContainerRepository {
	return &containerRepository{NewBaseRepository(db)}
}
