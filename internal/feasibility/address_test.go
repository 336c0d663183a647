package feasibility

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    AddressInput
		missing []string
	}{
		{
			name: "four fields",
			raw:  "Metropolitana, Santiago, Av. Libertad, 100",
			want: AddressInput{Region: "Metropolitana", Commune: "Santiago", Street: "Av. Libertad", Number: "100"},
		},
		{
			name: "tower and unit",
			raw:  " Valparaíso ,Viña del Mar,  Calle Nueva ,5, B, 1204 ",
			want: AddressInput{Region: "Valparaíso", Commune: "Viña del Mar", Street: "Calle Nueva", Number: "5", Tower: "B", Unit: "1204"},
		},
		{
			name:    "number missing",
			raw:     "Metropolitana, Santiago, Av. Libertad",
			missing: []string{"number"},
		},
		{
			name:    "blank fields",
			raw:     " , Santiago, , 100",
			missing: []string{"region", "street"},
		},
		{
			name:    "empty",
			raw:     "",
			missing: []string{"region", "commune", "street", "number"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAddress(tt.raw)
			if tt.missing != nil {
				var vErr *ValidationError
				require.True(t, errors.As(err, &vErr))
				assert.Equal(t, tt.missing, vErr.Missing)
				assert.Equal(t, tt.raw, vErr.Input)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAddressRendering(t *testing.T) {
	addr := AddressInput{Region: "RM", Commune: "Ñuñoa", Street: "Irarrázaval", Number: "3000"}
	assert.Equal(t, "Irarrázaval 3000", addr.StreetLine())
	assert.Equal(t, "Irarrázaval 3000, Ñuñoa, RM", addr.String())

	addr.Tower = "A"
	addr.Unit = "51"
	assert.Equal(t, "Irarrázaval 3000, Ñuñoa, RM, torre A, depto 51", addr.String())
}
