package scorer

// NewVertexScorerWithClient skips credential discovery.
var NewVertexScorerWithClient = newVertexScorer
