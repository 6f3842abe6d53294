package validation

import (
	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a validator with the struct-level rules registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()
	v.RegisterStructValidation(addLineStructValidation, AddLineRequest{})
	return v
}

// addLineStructValidation rejects lines that set both price selections. A line with
// neither is priced from the product.
func addLineStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(AddLineRequest)

	hasFixed := req.FixedPriceCents != nil
	hasTier := req.TierKey != nil && *req.TierKey != ""
	if hasFixed && hasTier {
		sl.ReportError(req.TierKey, "tierKey", "TierKey", "one_price", "")
	}
}
