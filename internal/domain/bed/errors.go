package bed

import "github.com/ehr/bedboard/internal/platform/apperr"

var (
	ErrBedNotFound         = apperr.NotFound("bed")
	ErrPatientNotFound     = apperr.NotFound("patient")
	ErrReservationNotFound = apperr.NotFound("reservation")

	ErrBedOccupied     = apperr.New(apperr.ErrConflict, "bed is occupied")
	ErrBedReserved     = apperr.New(apperr.ErrConflict, "bed is reserved")
	ErrBedInUse        = apperr.New(apperr.ErrConflict, "bed is occupied or reserved")
	ErrBedNotCustom    = apperr.New(apperr.ErrConflict, "only custom beds can be deleted")
	ErrPatientNotInBed = apperr.New(apperr.ErrConflict, "patient is not in this bed")
	ErrStaleVersion    = apperr.New(apperr.ErrConflict, "bed was modified by another user")
	ErrPendingControl  = apperr.New(apperr.ErrConflict, "patient has a pending discharge request")
	ErrBedNameTaken    = apperr.New(apperr.ErrConflict, "a bed with this name already exists in the department")
)
