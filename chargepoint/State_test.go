package chargepoint_test

import (
	"testing"
	"time"

	"github.com/lorenzodonini/ocpp-go/ocpp1.6/localauth"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"charge_point_twin/chargepoint"
)

func authData(idTag string, status types.AuthorizationStatus) localauth.AuthorizationData {
	return localauth.AuthorizationData{IdTag: idTag, IdTagInfo: types.NewIdTagInfo(status)}
}

func TestLocalListDifferentialSafety(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		update    []localauth.AuthorizationData
		maxLength int
		wantErr   error
		wantTags  []string
	}{
		{
			name:      "unknown id tag is rejected",
			update:    []localauth.AuthorizationData{authData("C", types.AuthorizationStatusAccepted)},
			maxLength: 10,
			wantErr:   chargepoint.ErrUnknownIdTag,
			wantTags:  []string{"A", "B"},
		},
		{
			name:      "merged list above max length is rejected",
			update:    []localauth.AuthorizationData{authData("A", types.AuthorizationStatusBlocked)},
			maxLength: 1,
			wantErr:   chargepoint.ErrListTooLong,
			wantTags:  []string{"A", "B"},
		},
		{
			name:      "known id tag is updated",
			update:    []localauth.AuthorizationData{authData("B", types.AuthorizationStatusBlocked)},
			maxLength: 10,
			wantTags:  []string{"A", "B"},
		},
		{
			name:      "entry without info removes the id tag",
			update:    []localauth.AuthorizationData{{IdTag: "A"}},
			maxLength: 1,
			wantTags:  []string{"B"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			list := chargepoint.NewLocalList(1, []localauth.AuthorizationData{
				authData("A", types.AuthorizationStatusAccepted),
				authData("B", types.AuthorizationStatusAccepted),
			})

			err := list.ApplyDifferential(2, tt.update, tt.maxLength)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, 1, list.Version())
			} else {
				require.NoError(t, err)
				assert.Equal(t, 2, list.Version())
			}

			var tags []string
			for _, entry := range list.Entries() {
				tags = append(tags, entry.IdTag)
			}
			assert.Equal(t, tt.wantTags, tags)
		})
	}
}

func TestLocalListReplaceAll(t *testing.T) {
	t.Parallel()

	list := chargepoint.NewLocalList(0, nil)

	err := list.ReplaceAll(3, []localauth.AuthorizationData{
		authData("A", types.AuthorizationStatusAccepted),
		authData("B", types.AuthorizationStatusAccepted),
	}, 1)
	assert.ErrorIs(t, err, chargepoint.ErrListTooLong)
	assert.Equal(t, 0, list.Version())

	err = list.ReplaceAll(3, []localauth.AuthorizationData{authData("A", types.AuthorizationStatusAccepted)}, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, list.Version())

	status, ok := list.Status("A")
	assert.True(t, ok)
	assert.Equal(t, types.AuthorizationStatusAccepted, status)

	_, ok = list.Status("B")
	assert.False(t, ok)
}

func TestReservationExpiry(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	reservations := chargepoint.NewReservations()

	assert.False(t, reservations.Add(chargepoint.Reservation{
		ReservationID: 1, ConnectorID: 1, IdTag: "VID:1", ExpiryDate: now.Add(-time.Minute),
	}, now), "expired reservations are not stored")

	require.True(t, reservations.Add(chargepoint.Reservation{
		ReservationID: 2, ConnectorID: 1, IdTag: "VID:1", ExpiryDate: now.Add(time.Minute),
	}, now))

	found, ok := reservations.Find("VID:1", 1, now)
	require.True(t, ok)
	assert.Equal(t, 2, found.ReservationID)

	_, ok = reservations.Find("VID:2", 1, now)
	assert.False(t, ok, "other id tags do not match")

	_, ok = reservations.Find("VID:1", 1, now.Add(time.Minute))
	assert.False(t, ok, "a reservation is inert at its expiry")

	_, ok = reservations.Find("VID:1", 1, now.Add(time.Hour))
	assert.False(t, ok, "a reservation is inert after its expiry")

	assert.True(t, reservations.Reserved(1, 3, now))
	assert.False(t, reservations.Reserved(1, 2, now), "a reservation does not block itself")
	assert.False(t, reservations.Reserved(2, 3, now))
	assert.False(t, reservations.Reserved(1, 3, now.Add(time.Minute)))

	assert.True(t, reservations.Cancel(2))
	assert.False(t, reservations.Cancel(2))
	assert.Equal(t, 0, reservations.Len())
}

func TestReservationForAnyConnector(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	reservation := chargepoint.Reservation{ConnectorID: 0, IdTag: "A", ExpiryDate: now.Add(time.Minute)}

	assert.True(t, reservation.ValidFor("A", 3, now))
	assert.False(t, reservation.ValidFor("A", 3, now.Add(2*time.Minute)))
}

func profile(id, stackLevel int, purpose types.ChargingProfilePurposeType) *types.ChargingProfile {
	return &types.ChargingProfile{
		ChargingProfileId:      id,
		StackLevel:             stackLevel,
		ChargingProfilePurpose: purpose,
		ChargingProfileKind:    types.ChargingProfileKindAbsolute,
		ChargingSchedule: types.NewChargingSchedule(types.ChargingRateUnitWatts,
			types.NewChargingSchedulePeriod(0, 11000)),
	}
}

func TestProfilesClearByStackLevel(t *testing.T) {
	t.Parallel()

	profiles := chargepoint.NewProfiles()
	require.NoError(t, profiles.Add(chargepoint.Assignment{Global: true, Profile: profile(1, 1, types.ChargingProfilePurposeTxDefaultProfile)}, 10, 10))
	require.NoError(t, profiles.Add(chargepoint.Assignment{Flat: 1, Evse: 1, Connector: 1, Profile: profile(2, 2, types.ChargingProfilePurposeTxDefaultProfile)}, 10, 10))
	require.NoError(t, profiles.Add(chargepoint.Assignment{Flat: 1, Evse: 1, Connector: 1, Profile: profile(3, 3, types.ChargingProfilePurposeTxProfile)}, 10, 10))

	level := 2
	removed := profiles.Clear(chargepoint.ClearFilter{StackLevel: &level})
	assert.Equal(t, 1, removed)

	var ids []int
	for _, a := range profiles.All() {
		ids = append(ids, a.Profile.ChargingProfileId)
		assert.NotEqual(t, 2, a.Profile.StackLevel)
	}
	assert.ElementsMatch(t, []int{1, 3}, ids)
}

func TestProfilesClearFilters(t *testing.T) {
	t.Parallel()

	id := 3
	connector := 2
	zero := 0

	tests := []struct {
		name    string
		filter  chargepoint.ClearFilter
		removed int
	}{
		{name: "no filter clears everything", filter: chargepoint.ClearFilter{}, removed: 3},
		{name: "by id", filter: chargepoint.ClearFilter{ID: &id}, removed: 1},
		{name: "by connector", filter: chargepoint.ClearFilter{Connector: &connector}, removed: 1},
		{name: "connector zero does not constrain", filter: chargepoint.ClearFilter{Connector: &zero}, removed: 3},
		{name: "by purpose", filter: chargepoint.ClearFilter{Purpose: types.ChargingProfilePurposeTxDefaultProfile}, removed: 2},
		{name: "all criteria must match", filter: chargepoint.ClearFilter{ID: &id, Purpose: types.ChargingProfilePurposeTxDefaultProfile}, removed: 0},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			profiles := chargepoint.NewProfiles()
			require.NoError(t, profiles.Add(chargepoint.Assignment{Global: true, Profile: profile(1, 0, types.ChargingProfilePurposeTxDefaultProfile)}, 10, 10))
			require.NoError(t, profiles.Add(chargepoint.Assignment{Flat: 1, Profile: profile(2, 0, types.ChargingProfilePurposeTxDefaultProfile)}, 10, 10))
			require.NoError(t, profiles.Add(chargepoint.Assignment{Flat: 2, Profile: profile(3, 0, types.ChargingProfilePurposeTxProfile)}, 10, 10))

			assert.Equal(t, tt.removed, profiles.Clear(tt.filter))
			assert.Len(t, profiles.All(), 3-tt.removed)
		})
	}
}

func TestProfilesBounds(t *testing.T) {
	t.Parallel()

	profiles := chargepoint.NewProfiles()

	err := profiles.Add(chargepoint.Assignment{Global: true, Profile: profile(1, 11, types.ChargingProfilePurposeTxDefaultProfile)}, 10, 10)
	assert.ErrorIs(t, err, chargepoint.ErrStackLevel)

	require.NoError(t, profiles.Add(chargepoint.Assignment{Flat: 1, Profile: profile(1, 1, types.ChargingProfilePurposeTxDefaultProfile)}, 10, 2))
	require.NoError(t, profiles.Add(chargepoint.Assignment{Flat: 1, Profile: profile(2, 2, types.ChargingProfilePurposeTxDefaultProfile)}, 10, 2))
	err = profiles.Add(chargepoint.Assignment{Flat: 1, Profile: profile(3, 3, types.ChargingProfilePurposeTxDefaultProfile)}, 10, 2)
	assert.ErrorIs(t, err, chargepoint.ErrTooManyProfiles)

	// same id replaces
	require.NoError(t, profiles.Add(chargepoint.Assignment{Flat: 1, Profile: profile(2, 5, types.ChargingProfilePurposeTxDefaultProfile)}, 10, 2))
	assert.Len(t, profiles.All(), 2)
	assert.Len(t, profiles.Applicable(1), 2)
	assert.Empty(t, profiles.Applicable(2))
}

func newChargePoint() *chargepoint.ChargePoint {
	return chargepoint.New(chargepoint.Identity{ID: 7, CID: "CP-7"}, []*chargepoint.Evse{
		{ID: 70, EvseID: 1, Connectors: []*chargepoint.Connector{{ID: 700, ConnectorID: 1}, {ID: 701, ConnectorID: 2}}},
		{ID: 71, EvseID: 2, Connectors: []*chargepoint.Connector{{ID: 710, ConnectorID: 1}}},
	}, nil, nil)
}

func TestChargePointDefaultsAndLookups(t *testing.T) {
	t.Parallel()

	cp := newChargePoint()

	assert.Equal(t, chargepoint.DefaultVendor, cp.Vendor)
	assert.Equal(t, chargepoint.DefaultModel, cp.Model)
	assert.Equal(t, chargepoint.ProtocolV16, cp.Protocol)
	assert.Equal(t, []int{2, 1}, cp.Counts())

	evse, connector, err := cp.LocateByRecordID(710)
	require.NoError(t, err)
	assert.Equal(t, 2, evse)
	assert.Equal(t, 1, connector)

	flat, err := cp.ToFlat(evse, connector)
	require.NoError(t, err)
	assert.Equal(t, 3, flat)

	_, _, err = cp.LocateByRecordID(999)
	assert.ErrorIs(t, err, chargepoint.ErrUnknownConnector)

	updated, err := cp.UpdateConnector(1, 2, func(c *chargepoint.Connector) { c.ProtocolTransactionID = "42" })
	require.NoError(t, err)
	assert.True(t, updated.HasTransactionInProgress())

	evse, connector, ok := cp.LocateByTransaction("42")
	assert.True(t, ok)
	assert.Equal(t, [2]int{1, 2}, [2]int{evse, connector})
}

func TestChargePointMarkAvailableAndReset(t *testing.T) {
	t.Parallel()

	cp := newChargePoint()
	topology := cp.MarkAvailable()

	assert.Equal(t, chargepoint.StatusAvailable, cp.Status())
	assert.Equal(t, []int{70, 71}, topology.EvseIDs)
	assert.Equal(t, []int{700, 701, 710}, topology.ConnectorIDs)

	c, err := cp.Connector(2, 1)
	require.NoError(t, err)
	assert.Equal(t, chargepoint.ConnectorStatusAvailable, c.Status)

	assert.True(t, cp.RequestReset("Soft"))
	assert.False(t, cp.RequestReset("Hard"))
	assert.Equal(t, "Soft", cp.PendingReset())
}

func TestChargePointAddChargingProfile(t *testing.T) {
	t.Parallel()

	cp := newChargePoint()

	require.NoError(t, cp.AddChargingProfile(0, profile(1, 1, types.ChargingProfilePurposeTxDefaultProfile)))
	require.NoError(t, cp.AddChargingProfile(3, profile(2, 1, types.ChargingProfilePurposeTxDefaultProfile)))
	assert.ErrorIs(t, cp.AddChargingProfile(4, profile(3, 1, types.ChargingProfilePurposeTxDefaultProfile)), chargepoint.ErrUnknownConnector)

	all := cp.Profiles.All()
	require.Len(t, all, 2)
	assert.True(t, all[0].Global)
	assert.Equal(t, 2, all[1].Evse)
	assert.Equal(t, 1, all[1].Connector)
	assert.Len(t, cp.Profiles.Applicable(3), 2)
	assert.Len(t, cp.Profiles.Applicable(1), 1)
}
