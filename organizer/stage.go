// Copyright (c) 2016-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package organizer

import "fmt"

// TxStage is the progress of a transaction through organization.  The
// stages are strictly sequential.  A failing stage rejects the submission
// for good.
type TxStage int

const (
	// TxReceived is the stage of a transaction nothing was checked for.
	TxReceived TxStage = iota

	// TxChecked follows the context free checks.
	TxChecked

	// TxAccepted follows the chain state dependent checks and the fee
	// and dust policy.
	TxAccepted

	// TxConnected follows script verification.
	TxConnected

	// TxPushed is the terminal stage of a pooled and stored transaction.
	TxPushed
)

var txStageStrings = map[TxStage]string{
	TxReceived:  "received",
	TxChecked:   "checked",
	TxAccepted:  "accepted",
	TxConnected: "connected",
	TxPushed:    "pushed",
}

// String returns the TxStage as a human-readable name.
func (s TxStage) String() string {
	if str, ok := txStageStrings[s]; ok {
		return str
	}
	return fmt.Sprintf("Unknown TxStage (%d)", int(s))
}
