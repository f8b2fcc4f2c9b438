package timerdao

// Timer is a shared countdown timer. EndTime is the absolute instant the
// countdown lands on while running, nil while paused; remaining duration is
// computed client-side from it.
type Timer struct {
	ID          string `dynamodbav:"pk" ddb:"hash"`
	OwnerUserID string `dynamodbav:"owner_user_id" ddb:"gsi_hash:OwnerIndex"`
	Name        string `dynamodbav:"name"`
	TotalMs     int64  `dynamodbav:"total_ms"`
	RemainingMs int64  `dynamodbav:"remaining_ms"`
	EndTime     *int64 `dynamodbav:"end_time,omitempty"` // unix millis
	UpdatedAt   int64  `dynamodbav:"updated_at"`
}
