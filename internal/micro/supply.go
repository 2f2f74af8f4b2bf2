package micro

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"scalebridge/internal/forcing"
)

const (
	Retail = iota
	Wholesale
	Factory
	nodeCount
)

var NodeNames = [nodeCount]string{"retail", "wholesale", "factory"}

type SupplyConfig struct {
	RetailCapacity    float64
	WholesaleCapacity float64
	FactoryCapacity   float64

	InitialInventory float64
	TargetInventory  float64
	PanicThreshold   float64
	PanicMultiplier  float64

	// FIFO transport lags; the wholesale->retail and factory->wholesale
	// pipelines start filled with InitialTransit.
	WholesaleLag   int
	FactoryLag     int
	InitialTransit float64
	FactoryInflow  float64

	// Factory capacity is FactoryCapacity / (1 + (signal-SignalBaseline)*CapacitySensitivity).
	SignalBaseline      float64
	CapacitySensitivity float64

	BaselineDemand float64
	DemandSD       float64
	ShockEnabled   bool
	ShockLift      float64
	ShockSD        float64
	ShockStart     float64
	ShockEnd       float64
}

func DefaultSupplyConfig() SupplyConfig {
	return SupplyConfig{
		RetailCapacity:      100,
		WholesaleCapacity:   80,
		FactoryCapacity:     60,
		InitialInventory:    50,
		TargetInventory:     50,
		PanicThreshold:      10,
		PanicMultiplier:     1.5,
		WholesaleLag:        2,
		FactoryLag:          4,
		InitialTransit:      10,
		FactoryInflow:       1000,
		SignalBaseline:      10,
		CapacitySensitivity: 0.05,
		BaselineDemand:      10,
		DemandSD:            2,
		ShockEnabled:        true,
		ShockLift:           20,
		ShockSD:             5,
		ShockStart:          0.3,
		ShockEnd:            0.6,
	}
}

func (c SupplyConfig) Validate() error {
	if c.RetailCapacity < 0 || c.WholesaleCapacity < 0 || c.FactoryCapacity < 0 {
		return errors.New("supply capacities must be >= 0")
	}
	if c.WholesaleLag < 1 || c.FactoryLag < 1 {
		return fmt.Errorf("supply transport lags must be >= 1, got %d/%d", c.WholesaleLag, c.FactoryLag)
	}
	if c.PanicMultiplier < 0 {
		return errors.New("supply panic multiplier must be >= 0")
	}
	if c.DemandSD < 0 || c.ShockSD < 0 {
		return errors.New("supply demand deviations must be >= 0")
	}
	if c.ShockEnabled && c.ShockEnd < c.ShockStart {
		return fmt.Errorf("supply shock window invalid: (%f, %f)", c.ShockStart, c.ShockEnd)
	}
	return nil
}

// SupplyInputs carries the exogenous series. An empty Demand uses
// BaselineDemand every step; an empty CapacitySignal uses SignalBaseline.
type SupplyInputs struct {
	Demand         []float64
	CapacitySignal []float64
}

type Node struct {
	Inventory float64
	Backlog   float64
	Capacity  float64
}

// NodeFlow records one node's step.
type NodeFlow struct {
	InventoryBefore float64 `json:"inventory_before"`
	Received        float64 `json:"received"`
	DemandTotal     float64 `json:"demand_total"`
	Sold            float64 `json:"sold"`
	BacklogAfter    float64 `json:"backlog_after"`
	Order           float64 `json:"order"`
}

type SupplyResult struct {
	Backlog        []float64
	Stress         []float64
	ConsumerDemand []float64
	// Flows[t][node], Inventory[node][t] and Orders[node][t] use the Retail,
	// Wholesale and Factory indices.
	Flows     [][nodeCount]NodeFlow
	Inventory [][]float64
	Orders    [][]float64
	Nodes     [nodeCount]Node
}

func (n *Node) step(demand, inbound, target, panicThreshold, panicMultiplier float64) NodeFlow {
	flow := NodeFlow{InventoryBefore: n.Inventory}
	flow.Received = math.Min(inbound, n.Capacity)
	n.Inventory += flow.Received

	flow.DemandTotal = demand + n.Backlog
	flow.Sold = math.Min(n.Inventory, flow.DemandTotal)
	n.Inventory -= flow.Sold
	n.Backlog = flow.DemandTotal - flow.Sold
	flow.BacklogAfter = n.Backlog

	order := math.Max(0, target-n.Inventory+n.Backlog)
	if n.Backlog > panicThreshold {
		order *= panicMultiplier
	}
	flow.Order = order
	return flow
}

// pipeline is a fixed-length FIFO of in-transit quantities.
type pipeline struct {
	slots []float64
	head  int
}

func newPipeline(length int, fill float64) *pipeline {
	p := &pipeline{slots: make([]float64, length)}
	for i := range p.slots {
		p.slots[i] = fill
	}
	return p
}

// peek returns the quantity arriving this step.
func (p *pipeline) peek() float64 {
	return p.slots[p.head]
}

// shift drops the delivered quantity and enqueues v behind the rest.
func (p *pipeline) shift(v float64) {
	p.slots[p.head] = v
	p.head = (p.head + 1) % len(p.slots)
}

// RunSupply steps the retail, wholesale and factory nodes in that order.
// Orders flow upstream within a step; shipments flow downstream through the
// transport pipelines.
func RunSupply(cfg SupplyConfig, in SupplyInputs, horizon int, seed int64) (SupplyResult, error) {
	if err := cfg.Validate(); err != nil {
		return SupplyResult{}, err
	}
	if horizon < 0 {
		return SupplyResult{}, fmt.Errorf("horizon must be >= 0, got %d", horizon)
	}
	demand := forcing.Constant(horizon, cfg.BaselineDemand)
	if len(in.Demand) > 0 {
		var err error
		if demand, err = forcing.Passthrough(in.Demand, horizon); err != nil {
			return SupplyResult{}, fmt.Errorf("demand: %w", err)
		}
	}
	signal := forcing.Constant(horizon, cfg.SignalBaseline)
	if len(in.CapacitySignal) > 0 {
		var err error
		if signal, err = forcing.Passthrough(in.CapacitySignal, horizon); err != nil {
			return SupplyResult{}, fmt.Errorf("capacity signal: %w", err)
		}
	}

	rng := rand.New(rand.NewSource(seed))
	nodes := [nodeCount]Node{
		Retail:    {Inventory: cfg.InitialInventory, Capacity: cfg.RetailCapacity},
		Wholesale: {Inventory: cfg.InitialInventory, Capacity: cfg.WholesaleCapacity},
		Factory:   {Inventory: cfg.InitialInventory, Capacity: cfg.FactoryCapacity},
	}
	toRetail := newPipeline(cfg.WholesaleLag, cfg.InitialTransit)
	toWholesale := newPipeline(cfg.FactoryLag, cfg.InitialTransit)

	shockFrom := float64(horizon) * cfg.ShockStart
	shockTo := float64(horizon) * cfg.ShockEnd

	result := SupplyResult{
		Backlog:        make([]float64, 0, horizon),
		Stress:         make([]float64, 0, horizon),
		ConsumerDemand: make([]float64, 0, horizon),
		Flows:          make([][nodeCount]NodeFlow, 0, horizon),
		Inventory:      make([][]float64, nodeCount),
		Orders:         make([][]float64, nodeCount),
	}
	for i := 0; i < nodeCount; i++ {
		result.Inventory[i] = make([]float64, 0, horizon)
		result.Orders[i] = make([]float64, 0, horizon)
	}

	for t := 0; t < horizon; t++ {
		mean, sd := demand[t], cfg.DemandSD
		if cfg.ShockEnabled && float64(t) > shockFrom && float64(t) < shockTo {
			mean, sd = mean+cfg.ShockLift, cfg.ShockSD
		}
		consumer := math.Max(0, mean+sd*rng.NormFloat64())

		capacity := cfg.FactoryCapacity / (1 + (signal[t]-cfg.SignalBaseline)*cfg.CapacitySensitivity)
		if capacity < 0 || math.IsNaN(capacity) {
			capacity = 0
		}
		nodes[Factory].Capacity = capacity

		var flows [nodeCount]NodeFlow
		flows[Retail] = nodes[Retail].step(consumer, toRetail.peek(), cfg.TargetInventory, cfg.PanicThreshold, cfg.PanicMultiplier)
		flows[Wholesale] = nodes[Wholesale].step(flows[Retail].Order, toWholesale.peek(), cfg.TargetInventory, cfg.PanicThreshold, cfg.PanicMultiplier)
		flows[Factory] = nodes[Factory].step(flows[Wholesale].Order, cfg.FactoryInflow, cfg.TargetInventory, cfg.PanicThreshold, cfg.PanicMultiplier)
		toRetail.shift(flows[Wholesale].Sold)
		toWholesale.shift(flows[Factory].Sold)

		backlog, inventory := 0.0, 0.0
		for i := range nodes {
			backlog += nodes[i].Backlog
			inventory += nodes[i].Inventory
			result.Inventory[i] = append(result.Inventory[i], nodes[i].Inventory)
			result.Orders[i] = append(result.Orders[i], flows[i].Order)
		}
		result.Backlog = append(result.Backlog, backlog)
		result.Stress = append(result.Stress, math.Max(0, 100-inventory/nodeCount))
		result.ConsumerDemand = append(result.ConsumerDemand, consumer)
		result.Flows = append(result.Flows, flows)
	}
	result.Nodes = nodes
	return result, nil
}
