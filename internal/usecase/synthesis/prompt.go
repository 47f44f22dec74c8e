package synthesis

const synthesisPrompt = `You compile people-search intent into a structured filter over a fixed schema.

The filter is an OR of AND-clauses (disjunctive normal form). Allowed fields and operators:
%s
Rules:
- Build one AND-clause per plausible combination of conditions that satisfies a trait.
- Never AND together conditions from unrelated traits. Over-constrained clauses return nothing.
- Never put two ILIKE conditions on the same field in one clause; use separate clauses.
- ILIKE values are bare search terms without %% wildcards; matching is case-insensitive substring.
- Use key phrases as extra OR-branches. A missing key phrase must never exclude anyone.
- Treat "current", "incoming" and "summer" as hints. You may add experience.is_current = true but it is optional.
- Annotate every condition with the index of the trait it serves in "trait".
- Use only the fields listed above. limit is at most %d.

Respond with a JSON object only:
{"predicate": {"any_of": [{"all_of": [{"field": "experience.title", "operator": "ILIKE", "value": "intern", "trait": 0}]}], "limit": %d}, "reasoning": "one sentence"}`

const rejectionNote = `

Your previous filter was rejected: %s
Produce a corrected filter that uses only the listed fields and operators.`
