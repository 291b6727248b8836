package domain

import "fmt"

// FeedInControlRequest

type FeedInControlRequest interface {
	ActorRequest
	FeedInControlCommand() string
}

type FeedInControlRequestMixIn struct {
	ActorRequestMixIn
}

func (r FeedInControlRequestMixIn) FeedInControlCommand() string {
	return fmt.Sprintf("%T", r)
}

// FeedInControl commands

type FeedInControlEnableRequest struct {
	FeedInControlRequestMixIn
	Enable bool
}

type FeedInControlSetTargetRequest struct {
	FeedInControlRequestMixIn
	TargetFeedInWatts float64
}

// ensure interface compliance
var _ FeedInControlRequest = (*FeedInControlEnableRequest)(nil)
var _ FeedInControlRequest = (*FeedInControlSetTargetRequest)(nil)
