package mocks

//go:generate mockgen -destination=./mock_algo.go -package=mocks github.com/rxtech-lab/argo-backtree/internal/tree Algo
//go:generate mockgen -destination=./mock_datasource.go -package=mocks github.com/rxtech-lab/argo-backtree/internal/backtest/engine/engine_v1/datasource DataSource
