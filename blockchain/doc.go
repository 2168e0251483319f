// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package blockchain implements the validation and organization core of a
bitcoin full node.

A BlockChain owns the store, the memory pool and the two organizers.  Blocks
are organized with Organize and transactions with OrganizeTx.  Both run on a
shared worker pool behind a prioritized gate, so a pending block is never
delayed by a stream of transactions.  The chain state the next block will be
validated under is kept in memory and replaced after every reorganization.

The following is a quick overview of the major operations:

  - Organize: check, locate in the block pool, accept and connect the branch
    ending in the block, then reorganize when the branch carries more work
    than the main chain above its fork point
  - OrganizeTx: check, accept, enforce the fee and dust policy, connect, then
    add to the memory pool and push to the store
  - ValidateTx: run the transaction checks without changing any state
  - Fetch*: query the store, the memory pool and block templates
  - Subscribe*: receive reorganizations and accepted transactions

Errors

Rule violations are returned as validate.RuleError values, whose ErrorCode
identifies the violated rule.  Service level failures wrap chain.ErrNotFound,
chain.ErrServiceStopped and chain.ErrOperationFailed and can be tested with
errors.Is.
*/
package blockchain
