package feasibility

import (
	"feasibility-bot/internal/config"
)

type ActionKind int

const (
	ActionClick ActionKind = iota
	ActionType
)

func (k ActionKind) String() string {
	switch k {
	case ActionClick:
		return "click"
	case ActionType:
		return "type"
	default:
		return "unknown"
	}
}

type Action struct {
	Kind  ActionKind
	Value string
}

func Click() Action {
	return Action{Kind: ActionClick}
}

func Type(value string) Action {
	return Action{Kind: ActionType, Value: value}
}

// Step is one wait-then-interact unit. Secret keeps the typed value out of
// the logs.
type Step struct {
	Selector string
	Action   Action
	Label    string
	Secret   bool
}

// StepList runs front to back and stops at the first failure.
type StepList []Step

// LoginSteps fills the portal credentials and submits the form. The operator
// ID field is only present when an ID is configured.
func LoginSteps(cfg config.Config) StepList {
	steps := StepList{
		{Selector: cfg.Selectors.Username, Action: Type(cfg.Portal.Username), Label: "Usuario"},
		{Selector: cfg.Selectors.Password, Action: Type(cfg.Portal.Password), Label: "Contraseña", Secret: true},
	}
	if cfg.Portal.OperatorID != "" {
		steps = append(steps, Step{Selector: cfg.Selectors.OperatorID, Action: Type(cfg.Portal.OperatorID), Label: "RUT", Secret: true})
	}
	return append(steps, Step{Selector: cfg.Selectors.Submit, Action: Click(), Label: "Botón Ingresar"})
}

func AddressSteps(cfg config.Config, addr AddressInput) StepList {
	return StepList{
		{Selector: cfg.Selectors.Address, Action: Type(addr.StreetLine()), Label: "Dirección"},
	}
}

// UnitSteps types tower and unit when both the input and the form carry
// those fields. Usually empty.
func UnitSteps(cfg config.Config, addr AddressInput) StepList {
	var steps StepList
	if cfg.Selectors.Tower != "" && addr.Tower != "" {
		steps = append(steps, Step{Selector: cfg.Selectors.Tower, Action: Type(addr.Tower), Label: "Torre"})
	}
	if cfg.Selectors.Unit != "" && addr.Unit != "" {
		steps = append(steps, Step{Selector: cfg.Selectors.Unit, Action: Type(addr.Unit), Label: "Departamento"})
	}
	return steps
}

func ConfirmationSteps(cfg config.Config) StepList {
	return StepList{
		{Selector: cfg.Selectors.Continue, Action: Click(), Label: "Botón Continuar"},
		{Selector: cfg.Selectors.Verify, Action: Click(), Label: "Botón Verificar"},
	}
}
