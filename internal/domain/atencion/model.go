package atencion

import (
	"time"

	"github.com/google/uuid"
)

// Source names for the three upstream systems.
const (
	SourceScheduler = "scheduler"
	SourceVoucher   = "voucher"
	SourceInvoicer  = "invoicer"
)

// UnknownPatientName is the placeholder used when an upstream record carries
// no patient name at all.
const UnknownPatientName = "Paciente sin nombre"

// Provenance records which source last wrote each field.
type Provenance map[string]string

// Atencion maps to the atenciones table: one patient encounter consolidated
// from the scheduler, voucher, and invoicer systems. At most one row exists
// per (source, external id) pair; a row may carry identifiers from several
// sources once merged.
type Atencion struct {
	ID uuid.UUID `db:"id" json:"id"`

	SchedulerID *string `db:"scheduler_id" json:"schedulerId,omitempty"`
	VoucherID   *string `db:"voucher_id" json:"voucherId,omitempty"`
	InvoiceID   *string `db:"invoice_id" json:"invoiceId,omitempty"`

	PacienteRut             *string    `db:"paciente_rut" json:"pacienteRut,omitempty"`
	PacienteNombre          string     `db:"paciente_nombre" json:"pacienteNombre"`
	PacienteEmail           *string    `db:"paciente_email" json:"pacienteEmail,omitempty"`
	PacienteTelefono        *string    `db:"paciente_telefono" json:"pacienteTelefono,omitempty"`
	PacienteFechaNacimiento *time.Time `db:"paciente_fecha_nacimiento" json:"pacienteFechaNacimiento,omitempty"`

	FechaCita    *time.Time `db:"fecha_cita" json:"fechaCita,omitempty"`
	Especialidad *string    `db:"especialidad" json:"especialidad,omitempty"`
	Profesional  *string    `db:"profesional" json:"profesional,omitempty"`
	TipoCita     *string    `db:"tipo_cita" json:"tipoCita,omitempty"`
	EstadoCita   *string    `db:"estado_cita" json:"estadoCita,omitempty"`

	Prevision        *string    `db:"prevision" json:"prevision,omitempty"`
	PlanSalud        *string    `db:"plan_salud" json:"planSalud,omitempty"`
	BonoNumero       *string    `db:"bono_numero" json:"bonoNumero,omitempty"`
	BonoEstado       *string    `db:"bono_estado" json:"bonoEstado,omitempty"`
	BonoMonto        *float64   `db:"bono_monto" json:"bonoMonto,omitempty"`
	BonoFechaEmision *time.Time `db:"bono_fecha_emision" json:"bonoFechaEmision,omitempty"`
	Copago           *float64   `db:"copago" json:"copago,omitempty"`
	MontoBonificado  *float64   `db:"monto_bonificado" json:"montoBonificado,omitempty"`
	CodigoPrestacion *string    `db:"codigo_prestacion" json:"codigoPrestacion,omitempty"`
	FechaExpiracion  *time.Time `db:"fecha_expiracion" json:"fechaExpiracion,omitempty"`
	VoucherURL       *string    `db:"voucher_url" json:"voucherUrl,omitempty"`

	FacturaNumero       *string    `db:"factura_numero" json:"facturaNumero,omitempty"`
	FacturaTipo         *string    `db:"factura_tipo" json:"facturaTipo,omitempty"`
	FacturaEstado       *string    `db:"factura_estado" json:"facturaEstado,omitempty"`
	FacturaFechaEmision *time.Time `db:"factura_fecha_emision" json:"facturaFechaEmision,omitempty"`
	MontoNeto           *float64   `db:"monto_neto" json:"montoNeto,omitempty"`
	MontoIVA            *float64   `db:"monto_iva" json:"montoIva,omitempty"`
	MontoTotal          *float64   `db:"monto_total" json:"montoTotal,omitempty"`
	MetodoPago          *string    `db:"metodo_pago" json:"metodoPago,omitempty"`
	EstadoPago          *string    `db:"estado_pago" json:"estadoPago,omitempty"`
	FechaPago           *time.Time `db:"fecha_pago" json:"fechaPago,omitempty"`
	MontoPagado         *float64   `db:"monto_pagado" json:"montoPagado,omitempty"`

	Provenance     Provenance             `db:"provenance" json:"provenance,omitempty"`
	LastModifiedBy *string                `db:"last_modified_by" json:"lastModifiedBy,omitempty"`
	Observaciones  *string                `db:"observaciones" json:"observaciones,omitempty"`
	DatosRaw       map[string]interface{} `db:"datos_raw" json:"datosRaw,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// ExternalID returns the identifier this record carries for the given source,
// or nil when unlinked.
func (a *Atencion) ExternalID(source string) *string {
	switch source {
	case SourceScheduler:
		return a.SchedulerID
	case SourceVoucher:
		return a.VoucherID
	case SourceInvoicer:
		return a.InvoiceID
	}
	return nil
}

func setString(dst **string, src *string, p Provenance, field, origin string) {
	if src != nil {
		*dst = src
		p[field] = origin
	}
}

func setFloat(dst **float64, src *float64, p Provenance, field, origin string) {
	if src != nil {
		*dst = src
		p[field] = origin
	}
}

func setTime(dst **time.Time, src *time.Time, p Provenance, field, origin string) {
	if src != nil {
		*dst = src
		p[field] = origin
	}
}

// MergeFrom applies a destructive field-level merge: every field present on
// the incoming record overwrites the stored value and takes over its
// provenance entry; absent fields are left untouched. Later deliveries always
// win regardless of timestamps.
func (a *Atencion) MergeFrom(in *Atencion, origin string) {
	if a.Provenance == nil {
		a.Provenance = Provenance{}
	}
	p := a.Provenance

	setString(&a.SchedulerID, in.SchedulerID, p, "schedulerId", origin)
	setString(&a.VoucherID, in.VoucherID, p, "voucherId", origin)
	setString(&a.InvoiceID, in.InvoiceID, p, "invoiceId", origin)

	setString(&a.PacienteRut, in.PacienteRut, p, "pacienteRut", origin)
	if in.PacienteNombre != "" {
		a.PacienteNombre = in.PacienteNombre
		p["pacienteNombre"] = origin
	}
	setString(&a.PacienteEmail, in.PacienteEmail, p, "pacienteEmail", origin)
	setString(&a.PacienteTelefono, in.PacienteTelefono, p, "pacienteTelefono", origin)
	setTime(&a.PacienteFechaNacimiento, in.PacienteFechaNacimiento, p, "pacienteFechaNacimiento", origin)

	setTime(&a.FechaCita, in.FechaCita, p, "fechaCita", origin)
	setString(&a.Especialidad, in.Especialidad, p, "especialidad", origin)
	setString(&a.Profesional, in.Profesional, p, "profesional", origin)
	setString(&a.TipoCita, in.TipoCita, p, "tipoCita", origin)
	setString(&a.EstadoCita, in.EstadoCita, p, "estadoCita", origin)

	setString(&a.Prevision, in.Prevision, p, "prevision", origin)
	setString(&a.PlanSalud, in.PlanSalud, p, "planSalud", origin)
	setString(&a.BonoNumero, in.BonoNumero, p, "bonoNumero", origin)
	setString(&a.BonoEstado, in.BonoEstado, p, "bonoEstado", origin)
	setFloat(&a.BonoMonto, in.BonoMonto, p, "bonoMonto", origin)
	setTime(&a.BonoFechaEmision, in.BonoFechaEmision, p, "bonoFechaEmision", origin)
	setFloat(&a.Copago, in.Copago, p, "copago", origin)
	setFloat(&a.MontoBonificado, in.MontoBonificado, p, "montoBonificado", origin)
	setString(&a.CodigoPrestacion, in.CodigoPrestacion, p, "codigoPrestacion", origin)
	setTime(&a.FechaExpiracion, in.FechaExpiracion, p, "fechaExpiracion", origin)
	setString(&a.VoucherURL, in.VoucherURL, p, "voucherUrl", origin)

	setString(&a.FacturaNumero, in.FacturaNumero, p, "facturaNumero", origin)
	setString(&a.FacturaTipo, in.FacturaTipo, p, "facturaTipo", origin)
	setString(&a.FacturaEstado, in.FacturaEstado, p, "facturaEstado", origin)
	setTime(&a.FacturaFechaEmision, in.FacturaFechaEmision, p, "facturaFechaEmision", origin)
	setFloat(&a.MontoNeto, in.MontoNeto, p, "montoNeto", origin)
	setFloat(&a.MontoIVA, in.MontoIVA, p, "montoIva", origin)
	setFloat(&a.MontoTotal, in.MontoTotal, p, "montoTotal", origin)
	setString(&a.MetodoPago, in.MetodoPago, p, "metodoPago", origin)
	setString(&a.EstadoPago, in.EstadoPago, p, "estadoPago", origin)
	setTime(&a.FechaPago, in.FechaPago, p, "fechaPago", origin)
	setFloat(&a.MontoPagado, in.MontoPagado, p, "montoPagado", origin)

	setString(&a.Observaciones, in.Observaciones, p, "observaciones", origin)
	setString(&a.LastModifiedBy, in.LastModifiedBy, p, "lastModifiedBy", origin)

	if len(in.DatosRaw) > 0 {
		if a.DatosRaw == nil {
			a.DatosRaw = make(map[string]interface{}, len(in.DatosRaw))
		}
		for k, v := range in.DatosRaw {
			a.DatosRaw[k] = v
		}
	}
}

// NewFromSource builds a fresh record from an incoming source record,
// initializing provenance for every populated field.
func NewFromSource(in *Atencion, origin string) *Atencion {
	a := &Atencion{PacienteNombre: UnknownPatientName}
	a.MergeFrom(in, origin)
	return a
}
