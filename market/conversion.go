package market

import (
	"context"
	"fmt"
)

// QuoteToAccountRate converts one unit of the instrument's quote currency
// into the account currency. Besides the trivial case it looks for a tick of
// QUOTE_ACCOUNT (rate is the mid) or ACCOUNT_QUOTE (rate is 1/mid); the
// latter covers USD_JPY on a USD account and EUR_JPY through USD_JPY.
func QuoteToAccountRate(ctx context.Context, meta InstrumentMeta, accountCurrency string, prices TickSource) (float64, error) {
	quote := meta.QuoteCurrency
	if quote == accountCurrency {
		return 1.0, nil
	}

	var errs []error
	for _, pair := range []struct {
		name    string
		inverse bool
	}{
		{quote + "_" + accountCurrency, false},
		{accountCurrency + "_" + quote, true},
	} {
		px, err := prices.GetTick(ctx, pair.name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		mid := px.Mid()
		if mid <= 0 {
			return 0, fmt.Errorf("no usable mid price for %s", pair.name)
		}
		if pair.inverse {
			return 1.0 / mid, nil
		}
		return mid, nil
	}
	return 0, fmt.Errorf("no conversion from %s to %s: %v", quote, accountCurrency, errs)
}
