package entity

import "errors"

// Sentinel errors for registry operations.
//
// These errors can be checked using errors.Is() for specific handling:
//
//	if errors.Is(err, entity.ErrMappingNotFound) {
//	    // Handle missing mapping
//	}
var (
	// ErrMappingNotFound indicates no mapping exists for the unique ID.
	ErrMappingNotFound = errors.New("entity: mapping not found")

	// ErrInvalidMapping indicates the mapping failed validation.
	ErrInvalidMapping = errors.New("entity: invalid mapping")

	// ErrEntityIDTaken indicates the entity ID is already mapped to a
	// different unique ID.
	ErrEntityIDTaken = errors.New("entity: entity ID already mapped")
)
