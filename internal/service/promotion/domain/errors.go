package domain

import "github.com/pkg/errors"

// 领域错误。配置类错误只让对应的优惠失效，不会中断其它优惠的评估。
var (
	ErrOfferNotFound          = errors.New("offer not found")
	ErrExperimentNotFound     = errors.New("experiment not found")
	ErrAssignmentNotFound     = errors.New("assignment not found")
	ErrAssignmentConflict     = errors.New("assignment conflict")
	ErrNoActiveVersion        = errors.New("no active offer version")
	ErrStrategyNotImplemented = errors.New("strategy not implemented")
	ErrInvalidBenefit         = errors.New("invalid benefit configuration")
	ErrMalformedTiers         = errors.New("malformed tier list")
	ErrInvalidRequest         = errors.New("invalid request")
)
