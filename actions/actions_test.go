package actions

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lorenzodonini/ocpp-go/ocpp1.6/core"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/localauth"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/remotetrigger"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/reservation"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/smartcharging"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/types"
	"github.com/lorenzodonini/ocpp-go/ocpp2.0.1/remotecontrol"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"charge_point_twin/backend"
	"charge_point_twin/chargepoint"
	"charge_point_twin/registry"
	"charge_point_twin/station"
)

var logger = logrus.WithField("client", "actions-test")

type fakeBackend struct {
	mu        sync.Mutex
	failWrite bool
	config    []map[string]interface{}
	started   []int
	stopped   []int
	statuses  []chargepoint.ConnectorStatus
}

func (b *fakeBackend) UpdateConfiguration(_ context.Context, _ int, values map[string]interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failWrite {
		return errors.New("backend down")
	}
	b.config = append(b.config, values)

	return nil
}

func (b *fakeBackend) StartTransaction(_ context.Context, _ int, connectorID int) (*backend.Transaction, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failWrite {
		return nil, errors.New("backend down")
	}
	b.started = append(b.started, connectorID)

	return &backend.Transaction{ID: 77, ConnectorID: connectorID}, nil
}

func (b *fakeBackend) StopTransaction(_ context.Context, _ int, transactionID int) (*backend.ActionMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = append(b.stopped, transactionID)

	return &backend.ActionMessage{}, nil
}

func (b *fakeBackend) UpdateConnectorStatus(_ context.Context, _ int, status chargepoint.ConnectorStatus) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.statuses = append(b.statuses, status)

	return nil
}

type fakeStation struct {
	station.Station

	mu       sync.Mutex
	statuses []chargepoint.ConnectorStatus
}

func (s *fakeStation) StatusNotification(_, _ int, status chargepoint.ConnectorStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, status)

	return nil
}

func (s *fakeStation) Heartbeat() error { return nil }

func newSession() *chargepoint.ChargePoint {
	return chargepoint.New(
		chargepoint.Identity{ID: 1, CID: "CP-1", UserID: 9},
		[]*chargepoint.Evse{
			{ID: 10, EvseID: 1, Status: chargepoint.EvseStatusAvailable, Connectors: []*chargepoint.Connector{
				{ID: 100, ConnectorID: 1, Status: chargepoint.ConnectorStatusAvailable},
				{ID: 101, ConnectorID: 2, Status: chargepoint.ConnectorStatusAvailable},
			}},
			{ID: 11, EvseID: 2, Status: chargepoint.EvseStatusAvailable, Connectors: []*chargepoint.Connector{
				{ID: 110, ConnectorID: 1, Status: chargepoint.ConnectorStatusAvailable},
			}},
		},
		nil, nil,
	)
}

func newV16(t *testing.T) (*V16, *chargepoint.ChargePoint, *fakeBackend, *fakeStation) {
	t.Helper()

	cp := newSession()
	b := &fakeBackend{}
	st := &fakeStation{}

	return NewV16(Dependencies{ChargePoint: cp, Station: st, Registry: registry.NewV16(logger), Backend: b, Timeout: time.Second, TriggerDelay: 50 * time.Millisecond}), cp, b, st
}

func TestResetRejectsWhenPending(t *testing.T) {
	t.Parallel()

	h, _, _, _ := newV16(t)

	first, err := h.OnReset(core.NewResetRequest(core.ResetTypeSoft))
	require.NoError(t, err)
	assert.Equal(t, core.ResetStatusAccepted, first.Status)

	second, err := h.OnReset(core.NewResetRequest(core.ResetTypeHard))
	require.NoError(t, err)
	assert.Equal(t, core.ResetStatusRejected, second.Status)
}

func TestGetConfigurationReportsUnknownKeys(t *testing.T) {
	t.Parallel()

	h, _, _, _ := newV16(t)

	request := core.NewGetConfigurationRequest([]string{chargepoint.KeyHeartbeatInterval, "Bogus"})
	confirmation, err := h.OnGetConfiguration(request)
	require.NoError(t, err)
	require.Len(t, confirmation.ConfigurationKey, 1)
	assert.Equal(t, chargepoint.KeyHeartbeatInterval, confirmation.ConfigurationKey[0].Key)
	assert.Equal(t, []string{"Bogus"}, confirmation.UnknownKey)
}

func TestChangeConfiguration(t *testing.T) {
	t.Parallel()

	t.Run("read-only key is rejected and unchanged", func(t *testing.T) {
		t.Parallel()

		h, cp, b, _ := newV16(t)
		before := cp.Configuration.Int(chargepoint.KeyNumberOfConnectors)

		confirmation, err := h.OnChangeConfiguration(core.NewChangeConfigurationRequest(chargepoint.KeyNumberOfConnectors, "12"))
		require.NoError(t, err)
		assert.Equal(t, core.ConfigurationStatusRejected, confirmation.Status)
		assert.Equal(t, before, cp.Configuration.Int(chargepoint.KeyNumberOfConnectors))
		assert.Empty(t, b.config)
	})

	t.Run("accepted change is mirrored", func(t *testing.T) {
		t.Parallel()

		h, cp, b, _ := newV16(t)

		confirmation, err := h.OnChangeConfiguration(core.NewChangeConfigurationRequest(chargepoint.KeyMeterValueSampleInterval, "15"))
		require.NoError(t, err)
		assert.Equal(t, core.ConfigurationStatusAccepted, confirmation.Status)
		assert.Equal(t, 15, cp.Configuration.Int(chargepoint.KeyMeterValueSampleInterval))
		assert.Equal(t, []map[string]interface{}{{chargepoint.KeyMeterValueSampleInterval: 15}}, b.config)
	})

	t.Run("failed mirror is rejected and reverted", func(t *testing.T) {
		t.Parallel()

		h, cp, b, _ := newV16(t)
		b.failWrite = true
		before := cp.Configuration.Int(chargepoint.KeyMeterValueSampleInterval)

		confirmation, err := h.OnChangeConfiguration(core.NewChangeConfigurationRequest(chargepoint.KeyMeterValueSampleInterval, "15"))
		require.NoError(t, err)
		assert.Equal(t, core.ConfigurationStatusRejected, confirmation.Status)
		assert.Equal(t, before, cp.Configuration.Int(chargepoint.KeyMeterValueSampleInterval))

		// A key without a default stays unset.
		confirmation, err = h.OnChangeConfiguration(core.NewChangeConfigurationRequest("BlinkRepeat", "3"))
		require.NoError(t, err)
		assert.Equal(t, core.ConfigurationStatusRejected, confirmation.Status)
		values, _ := cp.Configuration.Get([]string{"BlinkRepeat"})
		require.Len(t, values, 1)
		assert.Nil(t, values[0].Value)
	})

	t.Run("unknown key is not supported", func(t *testing.T) {
		t.Parallel()

		h, _, _, _ := newV16(t)

		confirmation, err := h.OnChangeConfiguration(core.NewChangeConfigurationRequest("Bogus", "1"))
		require.NoError(t, err)
		assert.Equal(t, core.ConfigurationStatusNotSupported, confirmation.Status)
	})
}

func TestRemoteStartTransaction(t *testing.T) {
	t.Parallel()

	h, cp, b, _ := newV16(t)

	request := core.NewRemoteStartTransactionRequest("VID:A")
	flat := 3
	request.ConnectorId = &flat
	confirmation, err := h.OnRemoteStartTransaction(request)
	require.NoError(t, err)
	assert.Equal(t, types.RemoteStartStopStatusAccepted, confirmation.Status)
	assert.Equal(t, []int{110}, b.started)

	_, err = cp.UpdateConnector(2, 1, func(c *chargepoint.Connector) { c.Status = chargepoint.ConnectorStatusCharging })
	require.NoError(t, err)
	confirmation, err = h.OnRemoteStartTransaction(request)
	require.NoError(t, err)
	assert.Equal(t, types.RemoteStartStopStatusRejected, confirmation.Status)

	unknown := 9
	request.ConnectorId = &unknown
	confirmation, err = h.OnRemoteStartTransaction(request)
	require.NoError(t, err)
	assert.Equal(t, types.RemoteStartStopStatusRejected, confirmation.Status)
	assert.Len(t, b.started, 1)
}

func TestRemoteStopTransaction(t *testing.T) {
	t.Parallel()

	h, cp, b, _ := newV16(t)
	record := 55
	_, err := cp.UpdateConnector(1, 2, func(c *chargepoint.Connector) {
		c.TransactionID = &record
		c.ProtocolTransactionID = "42"
	})
	require.NoError(t, err)

	confirmation, err := h.OnRemoteStopTransaction(core.NewRemoteStopTransactionRequest(42))
	require.NoError(t, err)
	assert.Equal(t, types.RemoteStartStopStatusAccepted, confirmation.Status)
	assert.Equal(t, []int{55}, b.stopped)

	confirmation, err = h.OnRemoteStopTransaction(core.NewRemoteStopTransactionRequest(43))
	require.NoError(t, err)
	assert.Equal(t, types.RemoteStartStopStatusRejected, confirmation.Status)
}

func TestChangeAvailability(t *testing.T) {
	t.Parallel()

	h, cp, b, st := newV16(t)
	record := 1
	_, err := cp.UpdateConnector(1, 1, func(c *chargepoint.Connector) { c.TransactionID = &record })
	require.NoError(t, err)

	confirmation, err := h.OnChangeAvailability(core.NewChangeAvailabilityRequest(0, core.AvailabilityTypeInoperative))
	require.NoError(t, err)
	assert.Equal(t, core.AvailabilityStatusScheduled, confirmation.Status)

	busy, err := cp.Connector(1, 1)
	require.NoError(t, err)
	assert.Equal(t, chargepoint.ConnectorStatusAvailable, busy.Status)
	assert.Equal(t, chargepoint.AvailabilityInoperative, busy.Availability)

	idle, err := cp.Connector(2, 1)
	require.NoError(t, err)
	assert.Equal(t, chargepoint.ConnectorStatusUnavailable, idle.Status)

	assert.Eventually(t, func() bool {
		st.mu.Lock()
		defer st.mu.Unlock()
		b.mu.Lock()
		defer b.mu.Unlock()
		return len(st.statuses) == 2 && len(b.statuses) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestUnlockAndDataTransfer(t *testing.T) {
	t.Parallel()

	h, _, _, _ := newV16(t)

	unlock, err := h.OnUnlockConnector(core.NewUnlockConnectorRequest(2))
	require.NoError(t, err)
	assert.Equal(t, core.UnlockStatusUnlocked, unlock.Status)

	unlock, err = h.OnUnlockConnector(core.NewUnlockConnectorRequest(7))
	require.NoError(t, err)
	assert.Equal(t, core.UnlockStatusNotSupported, unlock.Status)

	transfer, err := h.OnDataTransfer(core.NewDataTransferRequest("acme"))
	require.NoError(t, err)
	assert.Equal(t, core.DataTransferStatusUnknownVendorId, transfer.Status)
}

func TestClearCache(t *testing.T) {
	t.Parallel()

	h, cp, _, _ := newV16(t)
	cp.CacheAuthorization("VID:A", types.AuthorizationStatusAccepted)

	confirmation, err := h.OnClearCache(core.NewClearCacheRequest())
	require.NoError(t, err)
	assert.Equal(t, core.ClearCacheStatusAccepted, confirmation.Status)
	_, ok := cp.CachedAuthorization("VID:A")
	assert.False(t, ok)
}

func authorization(idTag string) localauth.AuthorizationData {
	return localauth.AuthorizationData{IdTag: idTag, IdTagInfo: types.NewIdTagInfo(types.AuthorizationStatusAccepted)}
}

func TestSendLocalList(t *testing.T) {
	t.Parallel()

	t.Run("differential with unknown id tag fails and keeps the list", func(t *testing.T) {
		t.Parallel()

		h, cp, _, _ := newV16(t)
		require.NoError(t, cp.LocalList.ReplaceAll(1, []localauth.AuthorizationData{authorization("A")}, 10))

		request := localauth.NewSendLocalListRequest(2, localauth.UpdateTypeDifferential)
		request.LocalAuthorizationList = []localauth.AuthorizationData{authorization("B")}
		confirmation, err := h.OnSendLocalList(request)
		require.NoError(t, err)
		assert.Equal(t, localauth.UpdateStatusFailed, confirmation.Status)
		assert.Equal(t, 1, cp.LocalList.Version())
		assert.Equal(t, []localauth.AuthorizationData{authorization("A")}, cp.LocalList.Entries())
	})

	t.Run("full update replaces the list", func(t *testing.T) {
		t.Parallel()

		h, cp, _, _ := newV16(t)

		request := localauth.NewSendLocalListRequest(3, localauth.UpdateTypeFull)
		request.LocalAuthorizationList = []localauth.AuthorizationData{authorization("A"), authorization("B")}
		confirmation, err := h.OnSendLocalList(request)
		require.NoError(t, err)
		assert.Equal(t, localauth.UpdateStatusAccepted, confirmation.Status)

		version, err := h.OnGetLocalListVersion(localauth.NewGetLocalListVersionRequest())
		require.NoError(t, err)
		assert.Equal(t, 3, version.ListVersion)
		assert.Len(t, cp.LocalList.Entries(), 2)
	})

	t.Run("disabled list is not supported", func(t *testing.T) {
		t.Parallel()

		h, cp, _, _ := newV16(t)
		require.NoError(t, cp.Configuration.Set(chargepoint.KeyLocalAuthListEnabled, "false"))

		confirmation, err := h.OnSendLocalList(localauth.NewSendLocalListRequest(1, localauth.UpdateTypeFull))
		require.NoError(t, err)
		assert.Equal(t, localauth.UpdateStatusNotSupported, confirmation.Status)

		version, err := h.OnGetLocalListVersion(localauth.NewGetLocalListVersionRequest())
		require.NoError(t, err)
		assert.Equal(t, -1, version.ListVersion)
	})
}

func TestReservations(t *testing.T) {
	t.Parallel()

	h, cp, _, _ := newV16(t)

	request := reservation.NewReserveNowRequest(1, types.NewDateTime(time.Now().Add(time.Hour)), "VID:A", 8)
	confirmation, err := h.OnReserveNow(request)
	require.NoError(t, err)
	assert.Equal(t, reservation.ReservationStatusAccepted, confirmation.Status)
	assert.Equal(t, 1, cp.Reservations.Len())

	expired := reservation.NewReserveNowRequest(1, types.NewDateTime(time.Now().Add(-time.Minute)), "VID:A", 9)
	confirmation, err = h.OnReserveNow(expired)
	require.NoError(t, err)
	assert.Equal(t, reservation.ReservationStatusRejected, confirmation.Status)

	// Another id tag cannot take a reserved connector; the holder may renew its own reservation.
	confirmation, err = h.OnReserveNow(reservation.NewReserveNowRequest(1, types.NewDateTime(time.Now().Add(time.Hour)), "VID:B", 10))
	require.NoError(t, err)
	assert.Equal(t, reservation.ReservationStatusOccupied, confirmation.Status)
	assert.Equal(t, 1, cp.Reservations.Len())

	confirmation, err = h.OnReserveNow(reservation.NewReserveNowRequest(1, types.NewDateTime(time.Now().Add(2*time.Hour)), "VID:A", 8))
	require.NoError(t, err)
	assert.Equal(t, reservation.ReservationStatusAccepted, confirmation.Status)
	assert.Equal(t, 1, cp.Reservations.Len())

	cancel, err := h.OnCancelReservation(reservation.NewCancelReservationRequest(8))
	require.NoError(t, err)
	assert.Equal(t, reservation.CancelReservationStatusAccepted, cancel.Status)

	cancel, err = h.OnCancelReservation(reservation.NewCancelReservationRequest(8))
	require.NoError(t, err)
	assert.Equal(t, reservation.CancelReservationStatusRejected, cancel.Status)
}

func profile(id, stackLevel int, limit float64) *types.ChargingProfile {
	return types.NewChargingProfile(id, stackLevel, types.ChargingProfilePurposeTxDefaultProfile, types.ChargingProfileKindAbsolute,
		types.NewChargingSchedule(types.ChargingRateUnitWatts, types.NewChargingSchedulePeriod(0, limit)))
}

func TestChargingProfiles(t *testing.T) {
	t.Parallel()

	h, cp, _, _ := newV16(t)

	for i, level := range []int{0, 1, 2} {
		request := smartcharging.NewSetChargingProfileRequest(1, profile(i+1, level, 1000*float64(i+1)))
		request.ChargingProfile.ChargingSchedule.StartSchedule = types.NewDateTime(time.Now().Add(-time.Minute))
		confirmation, err := h.OnSetChargingProfile(request)
		require.NoError(t, err)
		assert.Equal(t, smartcharging.ChargingProfileStatusAccepted, confirmation.Status)
	}

	composite, err := h.OnGetCompositeSchedule(smartcharging.NewGetCompositeScheduleRequest(1, 600))
	require.NoError(t, err)
	assert.Equal(t, smartcharging.GetCompositeScheduleStatusAccepted, composite.Status)
	require.NotNil(t, composite.ChargingSchedule)

	filter := smartcharging.NewClearChargingProfileRequest()
	level := 1
	filter.StackLevel = &level
	cleared, err := h.OnClearChargingProfile(filter)
	require.NoError(t, err)
	assert.Equal(t, smartcharging.ClearChargingProfileStatusAccepted, cleared.Status)

	remaining := cp.Profiles.All()
	require.Len(t, remaining, 2)
	for _, assignment := range remaining {
		assert.NotEqual(t, 1, assignment.Profile.StackLevel)
	}

	cleared, err = h.OnClearChargingProfile(filter)
	require.NoError(t, err)
	assert.Equal(t, smartcharging.ClearChargingProfileStatusUnknown, cleared.Status)
}

func TestTriggerMessage(t *testing.T) {
	t.Parallel()

	h, cp, _, _ := newV16(t)

	confirmation, err := h.OnTriggerMessage(remotetrigger.NewTriggerMessageRequest(remotetrigger.MessageTrigger("FirmwareStatusNotification")))
	require.NoError(t, err)
	assert.Equal(t, remotetrigger.TriggerMessageStatusNotImplemented, confirmation.Status)

	confirmation, err = h.OnTriggerMessage(remotetrigger.NewTriggerMessageRequest(remotetrigger.MessageTrigger(triggerHeartbeat)))
	require.NoError(t, err)
	assert.Equal(t, remotetrigger.TriggerMessageStatusAccepted, confirmation.Status)
	assert.Eventually(t, func() bool { return !cp.LastHeartbeat().IsZero() }, time.Second, 5*time.Millisecond)
}

func TestTriggeredMessageFollowsConfirmation(t *testing.T) {
	t.Parallel()

	cp := newSession()
	st := &fakeStation{}
	h := NewV16(Dependencies{
		ChargePoint:  cp,
		Station:      st,
		Registry:     registry.NewV16(logger),
		Backend:      &fakeBackend{},
		Timeout:      time.Second,
		TriggerDelay: 300 * time.Millisecond,
	})

	confirmation, err := h.OnTriggerMessage(remotetrigger.NewTriggerMessageRequest(remotetrigger.MessageTrigger(triggerHeartbeat)))
	require.NoError(t, err)
	assert.Equal(t, remotetrigger.TriggerMessageStatusAccepted, confirmation.Status)

	// The reply goes out first; the heartbeat waits for it.
	time.Sleep(50 * time.Millisecond)
	assert.True(t, cp.LastHeartbeat().IsZero())

	assert.Eventually(t, func() bool { return !cp.LastHeartbeat().IsZero() }, 2*time.Second, 10*time.Millisecond)
}

func TestV201Handlers(t *testing.T) {
	t.Parallel()

	cp := newSession()
	b := &fakeBackend{}
	h := NewV201(Dependencies{ChargePoint: cp, Station: &fakeStation{}, Registry: registry.NewV201(logger), Backend: b, Timeout: time.Second, TriggerDelay: 50 * time.Millisecond})

	evse := 2
	start, err := h.OnRequestStartTransaction(&remotecontrol.RequestStartTransactionRequest{EvseID: &evse, RemoteStartID: 1})
	require.NoError(t, err)
	assert.Equal(t, remotecontrol.RequestStartStopStatusAccepted, start.Status)
	assert.Equal(t, []int{110}, b.started)

	unlock, err := h.OnUnlockConnector(&remotecontrol.UnlockConnectorRequest{EvseID: 3, ConnectorID: 1})
	require.NoError(t, err)
	assert.Equal(t, remotecontrol.UnlockStatusUnknownConnector, unlock.Status)

	stop, err := h.OnRequestStopTransaction(&remotecontrol.RequestStopTransactionRequest{TransactionID: "1-1-unknown"})
	require.NoError(t, err)
	assert.Equal(t, remotecontrol.RequestStartStopStatusRejected, stop.Status)
}
