package redistribute

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SolarAlpha/internal/model"
)

func defaultRecipients() []model.Recipient {
	return []model.Recipient{
		{ID: "wck", Percentage: decimal.NewFromInt(25), Tag: model.TagCrisis},
		{ID: "dwb", Percentage: decimal.NewFromInt(25), Tag: model.TagCrisis},
		{ID: "you", Percentage: decimal.NewFromInt(30), Tag: model.TagKeep},
		{ID: "network", Percentage: decimal.NewFromInt(20), Tag: model.TagNetwork},
	}
}

func TestAllocate_WorkedExample(t *testing.T) {
	// gain 51.55 across 25/25/30/20: raw shares 12.8875, 12.8875,
	// 15.465, 10.31 truncate to 12.88, 12.88, 15.46, 10.31 leaving a
	// 0.02 remainder for the last crisis recipient.
	gain := decimal.RequireFromString("51.55")
	alloc, err := Allocate("trade-1", gain, defaultRecipients())
	require.NoError(t, err)
	require.Len(t, alloc.Lines, 4)

	want := []string{"12.88", "12.9", "15.46", "10.31"}
	for i, w := range want {
		assert.True(t, alloc.Lines[i].Amount.Equal(decimal.RequireFromString(w)),
			"line %d: got %s, want %s", i, alloc.Lines[i].Amount, w)
	}

	total := decimal.Zero
	for _, l := range alloc.Lines {
		total = total.Add(l.Amount)
	}
	assert.True(t, total.Equal(gain), "amounts sum to %s, want %s", total, gain)
	assert.True(t, alloc.CrisisAmount().GreaterThanOrEqual(gain.Div(decimal.NewFromInt(2))),
		"crisis share %s below half of %s", alloc.CrisisAmount(), gain)
}

func TestAllocate_ConservationExact(t *testing.T) {
	// No floating drift for any gain: amounts always sum to the gain
	// bit-for-bit.
	recipients := defaultRecipients()
	for _, raw := range []string{"0.01", "0.03", "1", "3.33", "99.99", "51.55", "1234.56", "0.07"} {
		gain := decimal.RequireFromString(raw)
		alloc, err := Allocate("t", gain, recipients)
		require.NoError(t, err, "gain %s", raw)

		total := decimal.Zero
		for _, l := range alloc.Lines {
			total = total.Add(l.Amount)
			assert.False(t, l.Amount.IsNegative(), "gain %s: negative amount for %s", raw, l.RecipientID)
		}
		assert.True(t, total.Equal(gain), "gain %s: sum %s", raw, total)
	}
}

func TestAllocate_RemainderGoesToLastCrisisRecipient(t *testing.T) {
	// 0.05 over 50/50 crisis+keep: crisis gets 0.02 truncated, remainder
	// 0.01 lands on the crisis line, not the keep line.
	recipients := []model.Recipient{
		{ID: "crisis-org", Percentage: decimal.NewFromInt(50), Tag: model.TagCrisis},
		{ID: "me", Percentage: decimal.NewFromInt(50), Tag: model.TagKeep},
	}
	alloc, err := Allocate("t", decimal.RequireFromString("0.05"), recipients)
	require.NoError(t, err)
	assert.True(t, alloc.Lines[0].Amount.Equal(decimal.RequireFromString("0.03")))
	assert.True(t, alloc.Lines[1].Amount.Equal(decimal.RequireFromString("0.02")))
}

func TestAllocate_RejectsNonPositiveGain(t *testing.T) {
	for _, raw := range []string{"0", "-5"} {
		_, err := Allocate("t", decimal.RequireFromString(raw), defaultRecipients())
		assert.ErrorIs(t, err, ErrPolicyViolation, "gain %s", raw)
	}
}

func TestValidatePolicy(t *testing.T) {
	tests := []struct {
		name       string
		recipients []model.Recipient
		wantErr    bool
	}{
		{
			name:       "valid",
			recipients: defaultRecipients(),
		},
		{
			name: "crisis share below floor",
			recipients: []model.Recipient{
				{ID: "a", Percentage: decimal.NewFromInt(40), Tag: model.TagCrisis},
				{ID: "b", Percentage: decimal.NewFromInt(60), Tag: model.TagKeep},
			},
			wantErr: true,
		},
		{
			name: "percentages do not sum to 100",
			recipients: []model.Recipient{
				{ID: "a", Percentage: decimal.NewFromInt(50), Tag: model.TagCrisis},
				{ID: "b", Percentage: decimal.NewFromInt(49), Tag: model.TagKeep},
			},
			wantErr: true,
		},
		{
			name: "no crisis recipient",
			recipients: []model.Recipient{
				{ID: "a", Percentage: decimal.NewFromInt(100), Tag: model.TagKeep},
			},
			wantErr: true,
		},
		{
			name:       "empty",
			recipients: nil,
			wantErr:    true,
		},
		{
			name: "crisis exactly at floor",
			recipients: []model.Recipient{
				{ID: "a", Percentage: decimal.NewFromInt(50), Tag: model.TagCrisis},
				{ID: "b", Percentage: decimal.NewFromInt(50), Tag: model.TagKeep},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePolicy(tt.recipients)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrPolicyViolation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
