// Package subagent spawns nested agent runs under a depth bound, a model
// allowlist and an optional token budget.
//
// Spawn applies its gates in a fixed order:
//
//  1. depth: parent depth + 1 must not exceed the parent agent's bound
//  2. allowlist: the child agent's resolved primary model must be allowed
//  3. child run: executed through the Runner with depth + 1 and the parent's
//     thread id, including its own resolution and failover
//  4. settlement: the child's total tokens are deducted from the budget,
//     all or nothing
//
// A failure before the child run returns the budget untouched. A failed or
// cancelled child yields no result and no deduction.
package subagent
