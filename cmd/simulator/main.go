package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var brands = []string{"Shell", "BP", "Esso", "Repsol", "Total"}

var vehicleNames = []string{"Civic", "Corolla", "Golf", "Focus", "Octavia", "Clio", "Mazda3", "i30"}

// Vehicle is the subset of the API vehicle the simulator needs.
type Vehicle struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Odometer float64 `json:"odometer"`
}

// addResult mirrors the add-expense response.
type addResult struct {
	Outcome string `json:"outcome"`
	Expense struct {
		ID string `json:"id"`
	} `json:"expense"`
	Alert         string `json:"alert"`
	ServiceAlerts []struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"service_alerts"`
}

// errVehicleLimit is returned when the account may not own more vehicles.
var errVehicleLimit = errors.New("vehicle limit reached")

// apiClient talks to the fuelscope API with a bearer token.
type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{baseURL: baseURL, http: &http.Client{Timeout: 10 * time.Second}}
}

// do sends in as JSON and decodes the response into out. It returns the
// status code.
func (c *apiClient) do(ctx context.Context, method, path string, in, out interface{}) (int, error) {
	var body bytes.Buffer
	if in != nil {
		if err := json.NewEncoder(&body).Encode(in); err != nil {
			return 0, fmt.Errorf("failed to marshal request: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < http.StatusBadRequest {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// authenticate logs in, registering the account first when it does not exist.
func (c *apiClient) authenticate(ctx context.Context, name, email, password string) error {
	var resp struct {
		Token string `json:"token"`
	}
	creds := map[string]string{"email": email, "password": password}
	status, err := c.do(ctx, http.MethodPost, "/auth/login", creds, &resp)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if status == http.StatusUnauthorized {
		creds["name"] = name
		status, err = c.do(ctx, http.MethodPost, "/auth/register", creds, &resp)
		if err != nil {
			return fmt.Errorf("register: %w", err)
		}
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return fmt.Errorf("authentication failed with status: %d", status)
	}
	c.token = resp.Token
	return nil
}

func (c *apiClient) createVehicle(ctx context.Context, name string, odometer float64) (Vehicle, error) {
	var v Vehicle
	status, err := c.do(ctx, http.MethodPost, "/vehicles", map[string]interface{}{"name": name, "odometer": odometer}, &v)
	if err != nil {
		return Vehicle{}, fmt.Errorf("failed to create vehicle: %w", err)
	}
	if status == http.StatusForbidden {
		return Vehicle{}, errVehicleLimit
	}
	if status != http.StatusCreated {
		return Vehicle{}, fmt.Errorf("vehicle creation failed with status: %d", status)
	}
	log.WithFields(log.Fields{"vehicle_id": v.ID, "name": v.Name, "odometer": v.Odometer}).Info("Created vehicle")
	return v, nil
}

func (c *apiClient) addExpense(ctx context.Context, expense map[string]interface{}) (addResult, error) {
	var result addResult
	status, err := c.do(ctx, http.MethodPost, "/expenses", expense, &result)
	if err != nil {
		return result, err
	}
	switch status {
	case http.StatusCreated, http.StatusOK, http.StatusConflict:
		return result, nil
	}
	return result, fmt.Errorf("expense rejected with status: %d", status)
}

// VehicleState is the simulated condition of one vehicle.
type VehicleState struct {
	VehicleID     string
	Odometer      float64
	TankLiters    float64
	FuelLiters    float64
	Consumption   float64 // liters per 100 km
	PricePerLiter float64
	Brand         string
	ServiceEvery  float64
	LastService   float64
}

func newVehicleState(v Vehicle, rng *rand.Rand) *VehicleState {
	tank := 40 + float64(rng.Intn(4))*5
	return &VehicleState{
		VehicleID:     v.ID,
		Odometer:      v.Odometer,
		TankLiters:    tank,
		FuelLiters:    tank * (0.5 + rng.Float64()/2),
		Consumption:   5 + rng.Float64()*3,
		PricePerLiter: 1.6 + rng.Float64()*0.4,
		Brand:         brands[rng.Intn(len(brands))],
		ServiceEvery:  10000,
		LastService:   v.Odometer,
	}
}

// drive advances the vehicle by up to maxKm and burns fuel. Now and then
// consumption spikes, which the API reports as an efficiency drop.
func (s *VehicleState) drive(rng *rand.Rand, maxKm float64) float64 {
	km := math.Round(maxKm*(0.5+rng.Float64()/2)*10) / 10
	consumption := s.Consumption * (0.95 + rng.Float64()*0.1)
	if rng.Float64() < 0.05 {
		consumption *= 1.5
	}
	s.Odometer += km
	s.FuelLiters = math.Max(0, s.FuelLiters-km*consumption/100)
	return km
}

// needsFuel reports whether the tank is below a quarter.
func (s *VehicleState) needsFuel() bool {
	return s.FuelLiters < s.TankLiters/4
}

// needsService reports whether the service interval has been driven.
func (s *VehicleState) needsService() bool {
	return s.Odometer-s.LastService >= s.ServiceEvery
}

// fillUp tops up the tank and returns the fuel expense payload.
func (s *VehicleState) fillUp(now time.Time) map[string]interface{} {
	liters := s.TankLiters - s.FuelLiters
	s.FuelLiters = s.TankLiters
	return map[string]interface{}{
		"vehicle_id": s.VehicleID,
		"type":       "fuel",
		"fuel_details": map[string]interface{}{
			"fuel_brand":      s.Brand,
			"price_per_liter": s.PricePerLiter,
		},
		"odometer":   math.Round(s.Odometer),
		"total_cost": math.Round(liters*s.PricePerLiter*100) / 100,
		"date":       now.UTC().Format(time.RFC3339),
	}
}

// service returns an oil change payload that keeps its reminder tracked.
func (s *VehicleState) service(now time.Time) map[string]interface{} {
	s.LastService = s.Odometer
	return map[string]interface{}{
		"vehicle_id":      s.VehicleID,
		"type":            "service",
		"service_details": map[string]interface{}{"service_type": "Oil Change"},
		"odometer":        math.Round(s.Odometer),
		"total_cost":      89.9,
		"date":            now.UTC().Format(time.RFC3339),
		"reminder": map[string]interface{}{
			"odometer_interval":    s.ServiceEvery,
			"time_interval_months": 12,
			"is_enabled":           true,
		},
	}
}

// tick drives one interval and records whatever the vehicle needed.
func tick(ctx context.Context, c *apiClient, s *VehicleState, rng *rand.Rand, maxKm float64) {
	s.drive(rng, maxKm)
	var payloads []map[string]interface{}
	if s.needsFuel() {
		payloads = append(payloads, s.fillUp(time.Now()))
	}
	if s.needsService() {
		payloads = append(payloads, s.service(time.Now()))
	}
	for _, p := range payloads {
		result, err := c.addExpense(ctx, p)
		if err != nil {
			log.WithError(err).WithField("vehicle_id", s.VehicleID).Error("Failed to record expense")
			continue
		}
		logResult(s.VehicleID, p["type"], result)
	}
}

func logResult(vehicleID string, kind interface{}, result addResult) {
	entry := log.WithFields(log.Fields{
		"vehicle_id": vehicleID,
		"type":       kind,
		"outcome":    result.Outcome,
		"expense_id": result.Expense.ID,
	})
	entry.Info("Recorded expense")
	if result.Alert != "" {
		entry.Warn(result.Alert)
	}
	for _, alert := range result.ServiceAlerts {
		entry.WithField("service", alert.Type).Warn(alert.Message)
	}
}

func simulateVehicle(ctx context.Context, c *apiClient, s *VehicleState, interval time.Duration, maxKm float64, seed int64) error {
	rng := rand.New(rand.NewSource(seed))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			tick(ctx, c, s, rng, maxKm)
		}
	}
}

func envInt(name string, def int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			return n
		}
	}
	return def
}

func envString(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func main() {
	_ = godotenv.Load()

	fleetSize := envInt("FLEET_SIZE", 1)
	apiURL := envString("API_BASE_URL", "http://localhost:8080/api")
	interval := time.Duration(envInt("SIM_TICK_SECONDS", 2)) * time.Second
	maxKm := float64(envInt("SIM_KM_PER_TICK", 120))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"fleet_size": fleetSize,
		"api_url":    apiURL,
		"interval":   interval,
	}).Info("Starting fuel log simulation")

	client := newAPIClient(apiURL)
	if err := client.authenticate(ctx,
		envString("SIM_NAME", "Simulator"),
		envString("SIM_EMAIL", "simulator@fuelscope.local"),
		envString("SIM_PASSWORD", "simulator-password"),
	); err != nil {
		log.WithError(err).Fatal("Failed to authenticate")
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	states := make([]*VehicleState, 0, fleetSize)
	for i := 0; i < fleetSize; i++ {
		name := fmt.Sprintf("%s #%d", vehicleNames[rng.Intn(len(vehicleNames))], i+1)
		v, err := client.createVehicle(ctx, name, float64(rng.Intn(50000)))
		if errors.Is(err, errVehicleLimit) {
			log.WithField("created", len(states)).Warn("Vehicle limit reached for this account")
			break
		}
		if err != nil {
			log.WithError(err).Error("Failed to create vehicle")
			continue
		}
		states = append(states, newVehicleState(v, rng))
	}

	log.WithField("created_vehicles", len(states)).Info("Vehicle creation completed")
	if len(states) == 0 {
		log.Error("No vehicles created. Ensure the API is reachable. Exiting.")
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range states {
		seed := rng.Int63()
		g.Go(func() error {
			return simulateVehicle(gctx, client, s, interval, maxKm, seed)
		})
	}
	log.Info("Fuel log simulation started")
	if err := g.Wait(); err != nil {
		log.WithError(err).Error("Simulation stopped")
	}
}
