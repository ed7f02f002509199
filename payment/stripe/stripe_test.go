package stripe

import (
	"context"
	"errors"
	"fmt"
	"testing"

	stripeapi "github.com/stripe/stripe-go/v79"

	"github.com/xraph/punchcard"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "api error means stripe rejected the call",
			err:  &stripeapi.Error{Msg: "charge already refunded", Code: stripeapi.ErrorCodeChargeAlreadyRefunded},
			want: punchcard.ErrProcessorFailure,
		},
		{
			name: "wrapped api error",
			err:  fmt.Errorf("refund: %w", &stripeapi.Error{Msg: "no such charge", Code: stripeapi.ErrorCodeResourceMissing}),
			want: punchcard.ErrProcessorFailure,
		},
		{
			name: "deadline exceeded leaves outcome unknown",
			err:  context.DeadlineExceeded,
			want: punchcard.ErrProcessorOutcomeUnknown,
		},
		{
			name: "cancelled context leaves outcome unknown",
			err:  context.Canceled,
			want: punchcard.ErrProcessorOutcomeUnknown,
		},
		{
			name: "transport failure leaves outcome unknown",
			err:  errors.New("connection reset by peer"),
			want: punchcard.ErrProcessorOutcomeUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("mapError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRefundReason(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"duplicate", "duplicate"},
		{"fraudulent", "fraudulent"},
		{"requested_by_customer", "requested_by_customer"},
		{"member asked nicely", "requested_by_customer"},
		{"", "requested_by_customer"},
	}
	for _, tt := range tests {
		if got := refundReason(tt.in); got != tt.want {
			t.Errorf("refundReason(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
