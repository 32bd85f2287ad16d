package atencion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medsync/medsync/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const atencionCols = `id, scheduler_id, voucher_id, invoice_id,
	paciente_rut, paciente_nombre, paciente_email, paciente_telefono, paciente_fecha_nacimiento,
	fecha_cita, especialidad, profesional, tipo_cita, estado_cita,
	prevision, plan_salud, bono_numero, bono_estado, bono_monto, bono_fecha_emision,
	copago, monto_bonificado, codigo_prestacion, fecha_expiracion, voucher_url,
	factura_numero, factura_tipo, factura_estado, factura_fecha_emision,
	monto_neto, monto_iva, monto_total, metodo_pago, estado_pago, fecha_pago, monto_pagado,
	provenance, last_modified_by, observaciones, datos_raw, created_at, updated_at`

func (r *repoPG) scanAtencion(row pgx.Row) (*Atencion, error) {
	var a Atencion
	err := row.Scan(&a.ID, &a.SchedulerID, &a.VoucherID, &a.InvoiceID,
		&a.PacienteRut, &a.PacienteNombre, &a.PacienteEmail, &a.PacienteTelefono, &a.PacienteFechaNacimiento,
		&a.FechaCita, &a.Especialidad, &a.Profesional, &a.TipoCita, &a.EstadoCita,
		&a.Prevision, &a.PlanSalud, &a.BonoNumero, &a.BonoEstado, &a.BonoMonto, &a.BonoFechaEmision,
		&a.Copago, &a.MontoBonificado, &a.CodigoPrestacion, &a.FechaExpiracion, &a.VoucherURL,
		&a.FacturaNumero, &a.FacturaTipo, &a.FacturaEstado, &a.FacturaFechaEmision,
		&a.MontoNeto, &a.MontoIVA, &a.MontoTotal, &a.MetodoPago, &a.EstadoPago, &a.FechaPago, &a.MontoPagado,
		&a.Provenance, &a.LastModifiedBy, &a.Observaciones, &a.DatosRaw, &a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

// sourceColumn maps a source name to its external-id column.
func sourceColumn(source string) (string, error) {
	switch source {
	case SourceScheduler:
		return "scheduler_id", nil
	case SourceVoucher:
		return "voucher_id", nil
	case SourceInvoicer:
		return "invoice_id", nil
	}
	return "", fmt.Errorf("unknown source: %s", source)
}

func (r *repoPG) Create(ctx context.Context, a *Atencion) error {
	a.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO atenciones (id, scheduler_id, voucher_id, invoice_id,
			paciente_rut, paciente_nombre, paciente_email, paciente_telefono, paciente_fecha_nacimiento,
			fecha_cita, especialidad, profesional, tipo_cita, estado_cita,
			prevision, plan_salud, bono_numero, bono_estado, bono_monto, bono_fecha_emision,
			copago, monto_bonificado, codigo_prestacion, fecha_expiracion, voucher_url,
			factura_numero, factura_tipo, factura_estado, factura_fecha_emision,
			monto_neto, monto_iva, monto_total, metodo_pago, estado_pago, fecha_pago, monto_pagado,
			provenance, last_modified_by, observaciones, datos_raw)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,
			$21,$22,$23,$24,$25,$26,$27,$28,$29,$30,$31,$32,$33,$34,$35,$36,$37,$38,$39,$40)`,
		a.ID, a.SchedulerID, a.VoucherID, a.InvoiceID,
		a.PacienteRut, a.PacienteNombre, a.PacienteEmail, a.PacienteTelefono, a.PacienteFechaNacimiento,
		a.FechaCita, a.Especialidad, a.Profesional, a.TipoCita, a.EstadoCita,
		a.Prevision, a.PlanSalud, a.BonoNumero, a.BonoEstado, a.BonoMonto, a.BonoFechaEmision,
		a.Copago, a.MontoBonificado, a.CodigoPrestacion, a.FechaExpiracion, a.VoucherURL,
		a.FacturaNumero, a.FacturaTipo, a.FacturaEstado, a.FacturaFechaEmision,
		a.MontoNeto, a.MontoIVA, a.MontoTotal, a.MetodoPago, a.EstadoPago, a.FechaPago, a.MontoPagado,
		a.Provenance, a.LastModifiedBy, a.Observaciones, a.DatosRaw)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Atencion, error) {
	return r.scanAtencion(r.conn(ctx).QueryRow(ctx,
		`SELECT `+atencionCols+` FROM atenciones WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, a *Atencion) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE atenciones SET scheduler_id=$2, voucher_id=$3, invoice_id=$4,
			paciente_rut=$5, paciente_nombre=$6, paciente_email=$7, paciente_telefono=$8, paciente_fecha_nacimiento=$9,
			fecha_cita=$10, especialidad=$11, profesional=$12, tipo_cita=$13, estado_cita=$14,
			prevision=$15, plan_salud=$16, bono_numero=$17, bono_estado=$18, bono_monto=$19, bono_fecha_emision=$20,
			copago=$21, monto_bonificado=$22, codigo_prestacion=$23, fecha_expiracion=$24, voucher_url=$25,
			factura_numero=$26, factura_tipo=$27, factura_estado=$28, factura_fecha_emision=$29,
			monto_neto=$30, monto_iva=$31, monto_total=$32, metodo_pago=$33, estado_pago=$34, fecha_pago=$35, monto_pagado=$36,
			provenance=$37, last_modified_by=$38, observaciones=$39, datos_raw=$40, updated_at=NOW()
		WHERE id = $1`,
		a.ID, a.SchedulerID, a.VoucherID, a.InvoiceID,
		a.PacienteRut, a.PacienteNombre, a.PacienteEmail, a.PacienteTelefono, a.PacienteFechaNacimiento,
		a.FechaCita, a.Especialidad, a.Profesional, a.TipoCita, a.EstadoCita,
		a.Prevision, a.PlanSalud, a.BonoNumero, a.BonoEstado, a.BonoMonto, a.BonoFechaEmision,
		a.Copago, a.MontoBonificado, a.CodigoPrestacion, a.FechaExpiracion, a.VoucherURL,
		a.FacturaNumero, a.FacturaTipo, a.FacturaEstado, a.FacturaFechaEmision,
		a.MontoNeto, a.MontoIVA, a.MontoTotal, a.MetodoPago, a.EstadoPago, a.FechaPago, a.MontoPagado,
		a.Provenance, a.LastModifiedBy, a.Observaciones, a.DatosRaw)
	return err
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM atenciones WHERE id = $1`, id)
	return err
}

// buildWhere assembles the WHERE clause shared by List, ListAll, and the
// count query.
func buildWhere(f Filter) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	add := func(clause string, value interface{}) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if f.StartDate != nil {
		add("fecha_cita >= $%d", *f.StartDate)
	}
	if f.EndDate != nil {
		add("fecha_cita <= $%d", *f.EndDate)
	}
	if f.EstadoPago != "" {
		add("estado_pago = $%d", f.EstadoPago)
	}
	if f.EstadoCita != "" {
		add("estado_cita = $%d", f.EstadoCita)
	}
	if f.PacienteRut != "" {
		add("paciente_rut = $%d", f.PacienteRut)
	}
	if f.Origin != "" {
		add("datos_raw ? $%d", f.Origin)
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		n := len(args)
		clauses = append(clauses, fmt.Sprintf(
			"(paciente_nombre ILIKE $%d OR paciente_rut ILIKE $%d OR profesional ILIKE $%d OR especialidad ILIKE $%d)",
			n, n, n, n))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Atencion, int, error) {
	where, args := buildWhere(f)

	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM atenciones`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM atenciones%s ORDER BY fecha_cita DESC NULLS LAST, created_at DESC LIMIT $%d OFFSET $%d`,
		atencionCols, where, len(args)-1, len(args))

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Atencion
	for rows.Next() {
		a, err := r.scanAtencion(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *repoPG) ListAll(ctx context.Context, f Filter) ([]*Atencion, error) {
	where, args := buildWhere(f)
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+atencionCols+` FROM atenciones`+where+` ORDER BY fecha_cita DESC NULLS LAST, created_at DESC`,
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Atencion
	for rows.Next() {
		a, err := r.scanAtencion(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *repoPG) FindByExternalID(ctx context.Context, source, externalID string) (*Atencion, error) {
	col, err := sourceColumn(source)
	if err != nil {
		return nil, err
	}
	a, err := r.scanAtencion(r.conn(ctx).QueryRow(ctx,
		`SELECT `+atencionCols+` FROM atenciones WHERE `+col+` = $1`, externalID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *repoPG) FindUnlinked(ctx context.Context, source, rut string, around time.Time, window time.Duration) (*Atencion, error) {
	col, err := sourceColumn(source)
	if err != nil {
		return nil, err
	}
	a, err := r.scanAtencion(r.conn(ctx).QueryRow(ctx,
		`SELECT `+atencionCols+` FROM atenciones
		 WHERE paciente_rut = $1 AND `+col+` IS NULL AND fecha_cita BETWEEN $2 AND $3
		 ORDER BY created_at ASC LIMIT 1`,
		rut, around.Add(-window), around.Add(window)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *repoPG) Stats(ctx context.Context) (*Stats, error) {
	s := &Stats{
		PorEstadoCita: make(map[string]int),
		PorEstadoPago: make(map[string]int),
	}

	if err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(monto_total), 0), COALESCE(SUM(monto_pagado), 0)
		FROM atenciones`).Scan(&s.Total, &s.MontoFacturado, &s.MontoPagado); err != nil {
		return nil, err
	}

	for _, q := range []struct {
		column string
		dest   map[string]int
	}{
		{"estado_cita", s.PorEstadoCita},
		{"estado_pago", s.PorEstadoPago},
	} {
		rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(
			`SELECT %s, COUNT(*) FROM atenciones WHERE %s IS NOT NULL GROUP BY %s`,
			q.column, q.column, q.column))
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var key string
			var count int
			if err := rows.Scan(&key, &count); err != nil {
				rows.Close()
				return nil, err
			}
			q.dest[key] = count
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	return s, nil
}
