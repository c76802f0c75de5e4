// Package intent builds signing intents: structured descriptions of the
// ledger instruction a client should sign and submit. The service never
// signs on behalf of a caller, it only describes the instruction.
package intent

import "encoding/json"

// ProgramName identifies the on-ledger program every intent targets.
const ProgramName = "collateral_vault"

const signingNote = "unsigned intent, sign and submit client-side"

// Intent is the wire shape returned to clients. Params holds one of the
// *Params types below; the set of instructions is closed.
type Intent struct {
	Program     string      `json:"program"`
	Instruction string      `json:"instruction"`
	Params      interface{} `json:"params"`
	Note        string      `json:"note"`
}

type InitializeParams struct {
	Owner          string `json:"owner"`
	BackingAccount string `json:"backing_account"`
}

type AmountParams struct {
	Owner  string `json:"owner"`
	Amount uint64 `json:"amount"`
}

type TransferParams struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

func Initialize(owner, backingAccount string) Intent {
	return build("initialize_vault", InitializeParams{Owner: owner, BackingAccount: backingAccount})
}

func Deposit(owner string, amount uint64) Intent {
	return build("deposit", AmountParams{Owner: owner, Amount: amount})
}

func Withdraw(owner string, amount uint64) Intent {
	return build("withdraw", AmountParams{Owner: owner, Amount: amount})
}

func Lock(owner string, amount uint64) Intent {
	return build("lock_collateral", AmountParams{Owner: owner, Amount: amount})
}

func Unlock(owner string, amount uint64) Intent {
	return build("unlock_collateral", AmountParams{Owner: owner, Amount: amount})
}

func Transfer(from, to string, amount uint64) Intent {
	return build("transfer_collateral", TransferParams{From: from, To: to, Amount: amount})
}

func build(instruction string, params interface{}) Intent {
	return Intent{
		Program:     ProgramName,
		Instruction: instruction,
		Params:      params,
		Note:        signingNote,
	}
}

// Encode renders the intent as JSON.
func (i Intent) Encode() ([]byte, error) {
	return json.Marshal(i)
}
