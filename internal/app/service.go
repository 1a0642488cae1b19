package app

// Service bundles the use cases the transport layer exposes.
type Service struct {
	Games  *GameService
	Rounds *Orchestrator
	Ledger *Ledger
}

func NewService(deps Deps) *Service {
	deps = deps.withDefaults()
	ledger := NewLedger(deps)
	rounds := NewOrchestrator(deps, ledger)
	return &Service{
		Games:  NewGameService(deps, rounds),
		Rounds: rounds,
		Ledger: ledger,
	}
}
