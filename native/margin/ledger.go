package margin

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"isovault/native/bank"
	nativecommon "isovault/native/common"
	"isovault/observability/metrics"
)

var (
	ErrUnauthorized     = errors.New("ledger: unauthorized")
	ErrUnknownMarket    = errors.New("ledger: unknown market")
	ErrMarketExists     = errors.New("ledger: market already listed")
	ErrUnknownContract  = errors.New("ledger: unknown contract")
	ErrInvalidAction    = errors.New("ledger: invalid action")
	ErrInvalidAmount    = errors.New("ledger: invalid amount")
	ErrAmountOverflow   = errors.New("ledger: amount overflows uint256")
	ErrNegativeBalance  = errors.New("ledger: balance cannot go negative")
	ErrInvalidAccounts  = errors.New("ledger: invalid accounts")
	ErrNilOracle        = errors.New("ledger: oracle not configured")
	errNilBank          = errors.New("ledger: bank not configured")
	errExchangeNoOutput = errors.New("ledger: exchange returned no amount")
)

// Ledger tracks signed balances per account and market and executes batched
// operations atomically.
type Ledger struct {
	address         common.Address
	governance      common.Address
	bank            *bank.Bank
	journal         *nativecommon.Journal
	pauses          nativecommon.PauseView
	markets         []*Market
	marketByToken   map[common.Address]uint64
	balances        map[AccountInfo]map[uint64]*big.Int
	globalOperators map[common.Address]bool
	operators       map[common.Address]map[common.Address]bool
	contracts       map[common.Address]any
	settlements     []func() error
	depth           int
	logger          *slog.Logger
	metrics         *metrics.IsolationMetrics
}

// NewLedger creates a ledger at address administered by governance. The ledger
// journals itself and the bank until SetJournal supplies a wider journal.
func NewLedger(address, governance common.Address, b *bank.Bank) *Ledger {
	l := &Ledger{
		address:         address,
		governance:      governance,
		bank:            b,
		marketByToken:   make(map[common.Address]uint64),
		balances:        make(map[AccountInfo]map[uint64]*big.Int),
		globalOperators: make(map[common.Address]bool),
		operators:       make(map[common.Address]map[common.Address]bool),
		contracts:       make(map[common.Address]any),
		logger:          slog.Default(),
	}
	l.journal = nativecommon.NewJournal(l, b)
	return l
}

// Journal returns the journal Operate runs under. Components touched by
// exchange wrappers or callees register themselves here.
func (l *Ledger) Journal() *nativecommon.Journal { return l.journal }

// SetJournal replaces the journal used to make Operate atomic.
func (l *Ledger) SetJournal(j *nativecommon.Journal) {
	if l == nil || j == nil {
		return
	}
	l.journal = j
}

func (l *Ledger) SetPauses(p nativecommon.PauseView) {
	if l == nil {
		return
	}
	l.pauses = p
}

func (l *Ledger) SetLogger(logger *slog.Logger) {
	if l == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	l.logger = logger.With("component", "ledger")
}

func (l *Ledger) SetMetrics(m *metrics.IsolationMetrics) {
	if l == nil {
		return
	}
	l.metrics = m
}

// AddSettlementCheck registers check to run at the end of every Operate
// batch. A failing check rejects the whole batch.
func (l *Ledger) AddSettlementCheck(check func() error) {
	if l == nil || check == nil {
		return
	}
	l.settlements = append(l.settlements, check)
}

// Operating reports whether an Operate batch is executing.
func (l *Ledger) Operating() bool { return l != nil && l.depth > 0 }

// Address returns the ledger's custody address.
func (l *Ledger) Address() common.Address { return l.address }

// Governance returns the ledger administrator.
func (l *Ledger) Governance() common.Address { return l.governance }

// RegisterContract makes an exchange wrapper or callee reachable by address in
// sell and call actions.
func (l *Ledger) RegisterContract(addr common.Address, contract any) {
	if l == nil || contract == nil {
		return
	}
	l.contracts[addr] = contract
}

// OwnerAddMarket lists token and returns its market id.
func (l *Ledger) OwnerAddMarket(caller, token common.Address, oracle PriceOracle, borrowable bool) (uint64, error) {
	if caller != l.governance {
		return 0, fmt.Errorf("%w: %s is not governance", ErrUnauthorized, caller.Hex())
	}
	if oracle == nil {
		return 0, ErrNilOracle
	}
	if id, ok := l.marketByToken[token]; ok {
		return 0, fmt.Errorf("%w: %s as market %d", ErrMarketExists, token.Hex(), id)
	}
	id := uint64(len(l.markets))
	l.markets = append(l.markets, &Market{ID: id, Token: token, Oracle: oracle, Borrowable: borrowable})
	l.marketByToken[token] = id
	l.logger.Info("market listed", "market", id, "token", token.Hex(), "borrowable", borrowable)
	return id, nil
}

// OwnerSetPriceOracle swaps the oracle used by a market.
func (l *Ledger) OwnerSetPriceOracle(caller common.Address, marketID uint64, oracle PriceOracle) error {
	if caller != l.governance {
		return fmt.Errorf("%w: %s is not governance", ErrUnauthorized, caller.Hex())
	}
	if oracle == nil {
		return ErrNilOracle
	}
	market, err := l.market(marketID)
	if err != nil {
		return err
	}
	market.Oracle = oracle
	return nil
}

// OwnerSetGlobalOperator allows operator to act on every account.
func (l *Ledger) OwnerSetGlobalOperator(caller, operator common.Address, approved bool) error {
	if caller != l.governance {
		return fmt.Errorf("%w: %s is not governance", ErrUnauthorized, caller.Hex())
	}
	if approved {
		l.globalOperators[operator] = true
	} else {
		delete(l.globalOperators, operator)
	}
	l.logger.Info("global operator updated", "operator", operator.Hex(), "approved", approved)
	return nil
}

// SetOperator lets owner delegate control of its accounts to operator.
func (l *Ledger) SetOperator(owner, operator common.Address, approved bool) {
	if l == nil {
		return
	}
	ops, ok := l.operators[owner]
	if !ok {
		ops = make(map[common.Address]bool)
		l.operators[owner] = ops
	}
	if approved {
		ops[operator] = true
	} else {
		delete(ops, operator)
	}
}

func (l *Ledger) IsGlobalOperator(addr common.Address) bool {
	return l.globalOperators[addr]
}

func (l *Ledger) GetNumMarkets() uint64 { return uint64(len(l.markets)) }

// GetMarketIDByToken resolves the market listing token.
func (l *Ledger) GetMarketIDByToken(token common.Address) (uint64, error) {
	id, ok := l.marketByToken[token]
	if !ok {
		return 0, fmt.Errorf("%w: token %s", ErrUnknownMarket, token.Hex())
	}
	return id, nil
}

func (l *Ledger) GetMarketTokenAddress(marketID uint64) (common.Address, error) {
	market, err := l.market(marketID)
	if err != nil {
		return common.Address{}, err
	}
	return market.Token, nil
}

// GetMarketPrice queries the market's oracle.
func (l *Ledger) GetMarketPrice(marketID uint64) (*big.Int, error) {
	market, err := l.market(marketID)
	if err != nil {
		return nil, err
	}
	return market.Oracle.GetPrice(market.Token)
}

// GetAccountWei returns the signed balance of account in market.
func (l *Ledger) GetAccountWei(account AccountInfo, marketID uint64) *big.Int {
	if bal, ok := l.balances[account][marketID]; ok {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

// Operate executes actions against accounts as sender. Either every action
// applies or none does.
func (l *Ledger) Operate(sender common.Address, accounts []AccountInfo, actions []ActionArgs) error {
	err := l.operate(sender, accounts, actions)
	l.metrics.ObserveLedgerOperate(err)
	if err != nil {
		l.logger.Warn("operate rejected", "sender", sender.Hex(), "actions", len(actions), "error", err)
	}
	return err
}

func (l *Ledger) operate(sender common.Address, accounts []AccountInfo, actions []ActionArgs) error {
	if l.bank == nil {
		return errNilBank
	}
	if err := nativecommon.Guard(l.pauses, nativecommon.ModuleLedger); err != nil {
		return err
	}
	if len(accounts) == 0 || len(actions) == 0 {
		return fmt.Errorf("%w: %d accounts, %d actions", ErrInvalidAccounts, len(accounts), len(actions))
	}
	seen := make(map[AccountInfo]struct{}, len(accounts))
	for _, account := range accounts {
		if _, dup := seen[account]; dup {
			return fmt.Errorf("%w: duplicate account %s", ErrInvalidAccounts, account)
		}
		seen[account] = struct{}{}
		if !l.canOperate(sender, account.Owner) {
			return fmt.Errorf("%w: %s cannot operate %s", ErrUnauthorized, sender.Hex(), account)
		}
	}
	l.depth++
	defer func() { l.depth-- }()
	return l.journal.Atomic(func() error {
		touched := make(map[AccountInfo]map[uint64]struct{})
		for i, action := range actions {
			if err := l.apply(sender, accounts, action, touched); err != nil {
				return fmt.Errorf("action %d (%s): %w", i, action.ActionType, err)
			}
		}
		if err := l.verify(touched); err != nil {
			return err
		}
		for _, check := range l.settlements {
			if err := check(); err != nil {
				return err
			}
		}
		return nil
	})
}

func (l *Ledger) canOperate(sender, owner common.Address) bool {
	return sender == owner || l.globalOperators[sender] || l.operators[owner][sender]
}

func (l *Ledger) apply(sender common.Address, accounts []AccountInfo, action ActionArgs, touched map[AccountInfo]map[uint64]struct{}) error {
	account, err := accountAt(accounts, action.AccountID)
	if err != nil {
		return err
	}
	switch action.ActionType {
	case ActionDeposit:
		market, delta, err := l.resolve(account, action.PrimaryMarketID, action.Amount)
		if err != nil {
			return err
		}
		if delta.Sign() <= 0 {
			return fmt.Errorf("%w: deposit of %s", ErrInvalidAmount, delta)
		}
		from := action.OtherAddress
		if from != sender && from != account.Owner {
			return fmt.Errorf("%w: deposit from %s", ErrUnauthorized, from.Hex())
		}
		if err := l.bank.Transfer(market.Token, from, l.address, delta); err != nil {
			return err
		}
		l.adjust(account, market.ID, delta, touched)
		return nil
	case ActionWithdraw:
		market, delta, err := l.resolve(account, action.PrimaryMarketID, action.Amount)
		if err != nil {
			return err
		}
		if delta.Sign() >= 0 {
			return fmt.Errorf("%w: withdrawal of %s", ErrInvalidAmount, delta)
		}
		l.adjust(account, market.ID, delta, touched)
		return l.bank.Transfer(market.Token, l.address, action.OtherAddress, new(big.Int).Neg(delta))
	case ActionTransfer:
		other, err := accountAt(accounts, action.OtherAccountID)
		if err != nil {
			return err
		}
		if other == account {
			return fmt.Errorf("%w: transfer to the same account", ErrInvalidAction)
		}
		market, delta, err := l.resolve(account, action.PrimaryMarketID, action.Amount)
		if err != nil {
			return err
		}
		l.adjust(account, market.ID, delta, touched)
		l.adjust(other, market.ID, new(big.Int).Neg(delta), touched)
		return nil
	case ActionSell:
		return l.sell(account, action, touched)
	case ActionCall:
		callee, ok := l.contracts[action.OtherAddress].(Callee)
		if !ok {
			return fmt.Errorf("%w: callee %s", ErrUnknownContract, action.OtherAddress.Hex())
		}
		return callee.CallFunction(l.address, sender, account, action.Data)
	default:
		return fmt.Errorf("%w: %s", ErrInvalidAction, action.ActionType)
	}
}

// sell moves the held amount to the exchange wrapper, lets it convert, then
// pulls the output back into custody.
func (l *Ledger) sell(account AccountInfo, action ActionArgs, touched map[AccountInfo]map[uint64]struct{}) error {
	held, delta, err := l.resolve(account, action.PrimaryMarketID, action.Amount)
	if err != nil {
		return err
	}
	if delta.Sign() >= 0 {
		return fmt.Errorf("%w: sell of %s", ErrInvalidAmount, delta)
	}
	owned, err := l.market(action.SecondaryMarketID)
	if err != nil {
		return err
	}
	if owned.ID == held.ID {
		return fmt.Errorf("%w: sell into the same market %d", ErrInvalidAction, held.ID)
	}
	wrapper, ok := l.contracts[action.OtherAddress].(ExchangeWrapper)
	if !ok {
		return fmt.Errorf("%w: exchange wrapper %s", ErrUnknownContract, action.OtherAddress.Hex())
	}
	amount := new(big.Int).Neg(delta)
	if err := l.bank.Transfer(held.Token, l.address, action.OtherAddress, amount); err != nil {
		return err
	}
	out, err := wrapper.Exchange(l.address, account.Owner, l.address, owned.Token, held.Token, amount, action.Data)
	if err != nil {
		return err
	}
	if out == nil || out.Sign() < 0 {
		return errExchangeNoOutput
	}
	if err := checkBounds(out); err != nil {
		return err
	}
	if err := l.bank.Transfer(owned.Token, action.OtherAddress, l.address, out); err != nil {
		return err
	}
	l.adjust(account, held.ID, delta, touched)
	l.adjust(account, owned.ID, out, touched)
	return nil
}

func (l *Ledger) resolve(account AccountInfo, marketID uint64, amount AssetAmount) (*Market, *big.Int, error) {
	market, err := l.market(marketID)
	if err != nil {
		return nil, nil, err
	}
	value := amount.signed()
	if err := checkBounds(value); err != nil {
		return nil, nil, err
	}
	switch amount.Ref {
	case AmountDelta:
		return market, value, nil
	case AmountTarget:
		return market, value.Sub(value, l.GetAccountWei(account, marketID)), nil
	default:
		return nil, nil, fmt.Errorf("%w: amount reference %d", ErrInvalidAction, amount.Ref)
	}
}

func (l *Ledger) adjust(account AccountInfo, marketID uint64, delta *big.Int, touched map[AccountInfo]map[uint64]struct{}) {
	markets, ok := l.balances[account]
	if !ok {
		markets = make(map[uint64]*big.Int)
		l.balances[account] = markets
	}
	next := new(big.Int).Add(l.GetAccountWei(account, marketID), delta)
	if next.Sign() == 0 {
		delete(markets, marketID)
	} else {
		markets[marketID] = next
	}
	set, ok := touched[account]
	if !ok {
		set = make(map[uint64]struct{})
		touched[account] = set
	}
	set[marketID] = struct{}{}
}

func (l *Ledger) verify(touched map[AccountInfo]map[uint64]struct{}) error {
	for account, markets := range touched {
		for marketID := range markets {
			bal := l.GetAccountWei(account, marketID)
			if bal.Sign() >= 0 {
				continue
			}
			if err := checkBounds(bal); err != nil {
				return err
			}
			if !l.markets[marketID].Borrowable {
				return fmt.Errorf("%w: %s market %d at %s", ErrNegativeBalance, account, marketID, bal)
			}
		}
	}
	return nil
}

func (l *Ledger) market(marketID uint64) (*Market, error) {
	if marketID >= uint64(len(l.markets)) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMarket, marketID)
	}
	return l.markets[marketID], nil
}

// Checkpoint implements common.Journaled.
func (l *Ledger) Checkpoint() func() {
	saved := make(map[AccountInfo]map[uint64]*big.Int, len(l.balances))
	for account, markets := range l.balances {
		copied := make(map[uint64]*big.Int, len(markets))
		for id, bal := range markets {
			copied[id] = new(big.Int).Set(bal)
		}
		saved[account] = copied
	}
	return func() { l.balances = saved }
}

func accountAt(accounts []AccountInfo, id int) (AccountInfo, error) {
	if id < 0 || id >= len(accounts) {
		return AccountInfo{}, fmt.Errorf("%w: account index %d", ErrInvalidAccounts, id)
	}
	return accounts[id], nil
}

func checkBounds(v *big.Int) error {
	if _, overflow := uint256.FromBig(new(big.Int).Abs(v)); overflow {
		return fmt.Errorf("%w: %s", ErrAmountOverflow, v)
	}
	return nil
}
