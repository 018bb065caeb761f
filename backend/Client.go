// Package backend is the HTTP client of the twin system of record.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/thoas/go-funk"

	"charge_point_twin/chargepoint"
)

const (
	DefaultURL = "http://localhost:8001"

	chargePointURITemplate       = "/twin/ocpp/charge-point/%d"
	chargePointStatusURITemplate = "/twin/ocpp/charge-point/status/%d/%s"
	configurationURITemplate     = "/twin/ocpp/charge-point/configuration/%d"
	startTransactionURITemplate  = "/twin/charge-point/action/start-transaction/%d"
	stopTransactionURITemplate   = "/twin/charge-point/action/stop-transaction/%d"
	transactionURITemplate       = "/operations/ocpp/transaction/%d"
	vehicleURITemplate           = "/twin/vehicle/%d"
	vehicleSocURITemplate        = "/twin/vehicle/soc/%d"
	vehicleStatusURITemplate     = "/twin/vehicle/status/%d/%s"
	evseStatusURITemplate        = "/twin/ocpp/evse/status/%d/%s"
	connectorStatusURITemplate   = "/twin/ocpp/connector/status/%d/%s"
	connectorURITemplate         = "/twin/ocpp/connector/%d"
	quotaURITemplate             = "/twin/quota/%d/%s"
)

// StatusError is returned when the system of record answers with anything but 200.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: expected response code to be %d, but got %d instead", e.Method, e.Path, http.StatusOK, e.Code)
}

// IsStatus reports whether err carries the given HTTP status from the system of record.
func IsStatus(err error, code int) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Code == code
}

type Client struct {
	http *resty.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}

	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
	}
}

func (c *Client) GetChargePoint(ctx context.Context, id int) (*ChargePoint, error) {
	var out ChargePoint
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf(chargePointURITemplate, id), nil, &out); err != nil {
		return nil, errors.Wrap(err, "failed to get charge point")
	}

	return &out, nil
}

// GetConfiguration returns the stored OCPP 1.6 configuration as a raw key/value map.
func (c *Client) GetConfiguration(ctx context.Context, id int) (map[string]interface{}, error) {
	out := map[string]interface{}{}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf(configurationURITemplate, id), nil, &out); err != nil {
		return nil, errors.Wrap(err, "failed to get charge point configuration")
	}

	return out, nil
}

func (c *Client) UpdateConfiguration(ctx context.Context, id int, values map[string]interface{}) error {
	return errors.Wrap(
		c.do(ctx, http.MethodPut, fmt.Sprintf(configurationURITemplate, id), values, nil),
		"failed to update charge point configuration",
	)
}

func (c *Client) StartTransaction(ctx context.Context, userID, connectorID int) (*Transaction, error) {
	var out Transaction
	err := c.do(ctx, http.MethodPost, fmt.Sprintf(startTransactionURITemplate, userID), StartTransactionRequest{ConnectorID: connectorID}, &out)
	if err != nil {
		return nil, errors.Wrap(err, "failed to request transaction start")
	}

	return &out, nil
}

func (c *Client) StopTransaction(ctx context.Context, userID, transactionID int) (*ActionMessage, error) {
	var out ActionMessage
	err := c.do(ctx, http.MethodPost, fmt.Sprintf(stopTransactionURITemplate, userID), StopTransactionRequest{TransactionID: transactionID}, &out)
	if err != nil {
		return nil, errors.Wrap(err, "failed to request transaction stop")
	}

	return &out, nil
}

func (c *Client) GetTransaction(ctx context.Context, id int) (*Transaction, error) {
	var out Transaction
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf(transactionURITemplate, id), nil, &out); err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	return &out, nil
}

func (c *Client) UpdateTransaction(ctx context.Context, id int, update TransactionUpdate) error {
	return errors.Wrap(
		c.do(ctx, http.MethodPatch, fmt.Sprintf(transactionURITemplate, id), update, nil),
		"failed to update transaction",
	)
}

func (c *Client) GetVehicle(ctx context.Context, id int) (*Vehicle, error) {
	var out Vehicle
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf(vehicleURITemplate, id), nil, &out); err != nil {
		return nil, errors.Wrap(err, "failed to get vehicle")
	}

	return &out, nil
}

func (c *Client) UpdateVehicleSoc(ctx context.Context, id int, soc int) error {
	return errors.Wrap(
		c.do(ctx, http.MethodPut, fmt.Sprintf(vehicleSocURITemplate, id), map[string]int{"soc": soc}, nil),
		"failed to update vehicle soc",
	)
}

func (c *Client) UpdateVehicleStatus(ctx context.Context, id int, status VehicleStatus) error {
	return errors.Wrap(
		c.do(ctx, http.MethodPut, fmt.Sprintf(vehicleStatusURITemplate, id, status), nil, nil),
		"failed to update vehicle status",
	)
}

func (c *Client) UpdateChargePointStatus(ctx context.Context, id int, status chargepoint.Status) error {
	return errors.Wrap(
		c.do(ctx, http.MethodPut, fmt.Sprintf(chargePointStatusURITemplate, id, status), nil, nil),
		"failed to update charge point status",
	)
}

func (c *Client) UpdateHeartbeat(ctx context.Context, id int, at time.Time) error {
	return errors.Wrap(
		c.do(ctx, http.MethodPatch, fmt.Sprintf(chargePointURITemplate, id), map[string]time.Time{"last_heartbeat": at}, nil),
		"failed to update heartbeat",
	)
}

func (c *Client) UpdateEvseStatus(ctx context.Context, id int, status chargepoint.EvseStatus, activeConnector *int) error {
	path := fmt.Sprintf(evseStatusURITemplate, id, status)
	if activeConnector != nil {
		path += "?active_connector=" + strconv.Itoa(*activeConnector)
	}

	return errors.Wrap(c.do(ctx, http.MethodPut, path, nil, nil), "failed to update evse status")
}

func (c *Client) UpdateConnectorStatus(ctx context.Context, id int, status chargepoint.ConnectorStatus) error {
	return errors.Wrap(
		c.do(ctx, http.MethodPut, fmt.Sprintf(connectorStatusURITemplate, id, status), nil, nil),
		"failed to update connector status",
	)
}

func (c *Client) UpdateConnector(ctx context.Context, id int, update ConnectorUpdate) error {
	return errors.Wrap(
		c.do(ctx, http.MethodPut, fmt.Sprintf(connectorURITemplate, id), update, nil),
		"failed to update connector",
	)
}

func (c *Client) ConsumeQuota(ctx context.Context, quotaID int, cost float64) error {
	return errors.Wrap(
		c.do(ctx, http.MethodPatch, fmt.Sprintf(quotaURITemplate, quotaID, strconv.FormatFloat(cost, 'f', -1, 64)), nil, nil),
		"failed to consume quota",
	)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}

	res, err := req.Execute(method, path)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}

	if res.StatusCode() != http.StatusOK {
		return &StatusError{Method: method, Path: path, Code: res.StatusCode(), Body: string(res.Body())}
	}

	if out == nil || funk.IsEmpty(res.Body()) {
		return nil
	}

	if err := json.Unmarshal(res.Body(), out); err != nil {
		return errors.Wrapf(err, "failed to decode response of %s %s", method, path)
	}

	return nil
}
