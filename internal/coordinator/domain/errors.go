package domain

import "errors"

var (
	// ErrDuplicateJobID is returned when creating a job whose id already exists
	ErrDuplicateJobID = errors.New("job id already exists")

	// ErrDuplicateNodeID is returned when registering a node whose id already exists
	ErrDuplicateNodeID = errors.New("node id already exists")

	// ErrJobNotFound is returned when a job cannot be found
	ErrJobNotFound = errors.New("job not found")

	// ErrNodeNotFound is returned when a node cannot be found
	ErrNodeNotFound = errors.New("node not found")

	// ErrInvalidState is returned when an operation is not valid for the job's current state
	ErrInvalidState = errors.New("operation not valid for current job state")

	// ErrDeadlinePassed is returned when the job's deadline has already passed
	ErrDeadlinePassed = errors.New("job deadline has passed")

	// ErrNodeNotEligible is returned when a node is not IDLE or does not meet the job's requirements
	ErrNodeNotEligible = errors.New("node not eligible for job")

	// ErrInsufficientBalance is returned when the payer cannot cover the bounty
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrAlreadySettled is returned on a second settlement attempt for the same job
	ErrAlreadySettled = errors.New("escrow entry already settled")

	// ErrUnknownEscrowEntry is returned when no escrow entry exists for a job
	ErrUnknownEscrowEntry = errors.New("no escrow entry for job")

	// ErrUnauthorizedCaller is returned when the caller is not the owner, claimant,
	// or assigned provider the operation requires
	ErrUnauthorizedCaller = errors.New("caller not authorized for this operation")

	// ErrInvalidDeadline is returned when a deadline is not strictly in the future
	// of the reference it must exceed
	ErrInvalidDeadline = errors.New("invalid deadline")

	// ErrInvalidBounty is returned when the bounty amount is not positive
	ErrInvalidBounty = errors.New("invalid bounty amount")
)
