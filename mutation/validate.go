package mutation

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-listsync/fetcher"
	"github.com/goliatone/go-listsync/syncerr"
)

// Validate checks a mutation before anything is sent. It rejects requests
// without an action or a positive id and payment splits that do not add up
// to the declared total. Amounts are compared in cents.
func Validate(req fetcher.MutationRequest) error {
	err := validation.ValidateStruct(&req,
		validation.Field(&req.Action, validation.Required.Error("is required")),
		validation.Field(&req.ID,
			validation.Required.Error("must be a positive id"),
			validation.Min(int64(1)).Error("must be a positive id"),
		),
	)
	if err != nil {
		return syncerr.Validation("invalid mutation request: "+err.Error(), map[string]any{
			"action": req.Action,
			"id":     req.ID,
		})
	}

	if len(req.Payments) == 0 {
		return nil
	}
	return validateSplits(req.Total, req.Payments)
}

// maxAmount keeps every amount, and the sum of any realistic number of
// splits, representable as int64 cents.
const maxAmount = 1e12

func validateSplits(total float64, splits []fetcher.PaymentSplit) error {
	if err := validation.Validate(total, amountRules...); err != nil {
		return syncerr.Validation("payment total: "+err.Error(), map[string]any{
			"total": strconv.FormatFloat(total, 'g', -1, 64),
		})
	}

	var sum int64
	for i, split := range splits {
		err := validation.ValidateStruct(&split,
			validation.Field(&split.Method, validation.Required.Error("is required")),
			validation.Field(&split.Amount, amountRules...),
		)
		if err != nil {
			var verrs validation.Errors
			if !errors.As(err, &verrs) {
				return err
			}
			return syncerr.Validation(fmt.Sprintf("payment split %d: %s", i+1, verrs.Error()), map[string]any{
				"index": i,
			})
		}
		sum += cents(split.Amount)
	}

	expected := cents(total)
	if sum != expected {
		return syncerr.Validation(
			fmt.Sprintf("payment splits do not match the declared total: expected %s, actual %s",
				formatCents(expected), formatCents(sum)),
			map[string]any{
				"expected": float64(expected) / 100,
				"actual":   float64(sum) / 100,
			},
		)
	}
	return nil
}

var amountRules = []validation.Rule{
	validation.By(finite),
	validation.Min(0.0).Error("must not be negative"),
	validation.Max(maxAmount).Error("is too large"),
}

func finite(value any) error {
	v, _ := value.(float64)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return errors.New("must be a finite number")
	}
	return nil
}

func cents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func formatCents(c int64) string {
	return strconv.FormatFloat(float64(c)/100, 'f', -1, 64)
}
