package service

import (
	"errors"

	"github.com/wb-go/wbf/ginext"

	"hikenity/internal/dto"
	"hikenity/internal/payment"
	"hikenity/pkg/validator"
)

func (s *service) CreatePaymentIntent(ctx *ginext.Context) {
	var req dto.CreatePaymentIntentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}

	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, verr.Error())
		return
	}

	pi, err := s.payments.CreateIntent(ctx.Request.Context(), req.Amount)
	if err != nil {
		s.log.Error().Err(err).Int64("amount", req.Amount).Msg("failed to create payment intent")
		dto.InternalServerError(ctx)
		return
	}

	s.log.Info().Str("payment_intent_id", pi.ID).Int64("amount", req.Amount).Msg("payment intent created")
	dto.SuccessResponse(ctx, dto.PaymentIntentResponse{
		ClientSecret:    pi.ClientSecret,
		PaymentIntentID: pi.ID,
	})
}

func (s *service) RetrieveReceipt(ctx *ginext.Context) {
	var req dto.RetrieveReceiptRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}

	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, verr.Error())
		return
	}

	url, err := s.payments.ReceiptURL(ctx.Request.Context(), req.PaymentIntentID)
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrNoCharge):
			dto.NotFoundError(ctx, dto.NoCharge, "No charge data found for this PaymentIntent")
		case errors.Is(err, payment.ErrNoReceipt):
			dto.NotFoundError(ctx, dto.NoReceipt, "No receipt available")
		default:
			s.log.Error().Err(err).Str("payment_intent_id", req.PaymentIntentID).Msg("failed to retrieve receipt")
			dto.InternalServerError(ctx)
		}
		return
	}

	dto.SuccessResponse(ctx, dto.ReceiptResponse{ReceiptURL: url})
}
