package sharedao

// Share is one sharing edge between a timer and a user it is shared with.
// ShareID is "{timerId}#{sharedWithUserId}".
type Share struct {
	ShareID    string `dynamodbav:"pk" ddb:"hash"`
	TimerID    string `dynamodbav:"timer_id" ddb:"gsi_hash:TimerIndex"`
	SharedWith string `dynamodbav:"shared_with" ddb:"gsi_hash:UserIndex"`
	CreatedAt  int64  `dynamodbav:"created_at"`
}

// ShareKey is the partition key for a (timer, user) edge.
func ShareKey(timerID, userID string) string {
	return timerID + "#" + userID
}
