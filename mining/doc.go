// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package mining selects transactions for block templates.

Overview

Transactions offered for a template are kept in a PartiallyIndexed
structure.  Every transaction is stored, but only those that currently fit
the template budget are indexed as candidates.  The candidate index is kept
in rank order lazily: cheap appends mark it unsorted, and it is sorted again
only when an insertion has to displace lower ranked candidates.

The accounting that decides what fits, and how candidates are ranked, is
delegated to a Policy.  TemplatePolicy is the default one and ranks by fee
rate against a byte and a signature operation budget.

PackTemplate implements the simpler greedy multi-pass packer used to serve
a fee sorted dump of the unconfirmed pool.

Debugging

When built with the debug tag every insertion is followed by a full
invariant check which panics on failure:

	go test -tags debug ./mining/...
*/
package mining
