package repository

import (
	"errors"

	"github.com/zlovtnik/leasebill/internal/billing/domain"
)

// ErrNotFound is returned when a requested resource does not exist
var ErrNotFound = domain.ErrNotFound

// ErrVersionConflict is returned when a contract changed since it was read
var ErrVersionConflict = errors.New("contract version conflict")

// ErrLockedInstallment is returned when a delete or rewrite targets a paid or invoiced installment
var ErrLockedInstallment = errors.New("installment is paid or invoiced")

// Error format strings for repository operations
const (
	errFmtBeginTx      = "failed to begin transaction: %w"
	errFmtCommitTx     = "failed to commit transaction: %w"
	errFmtRowsAffected = "failed to get rows affected: %w"
)
